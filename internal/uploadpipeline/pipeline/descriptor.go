package pipeline

import (
	"encoding/json"
	"fmt"
)

// Descriptor is the in-queue representation of one upload (§3
// "UploadDescriptor"): a JSON object carrying at minimum an upload id plus
// arbitrary opaque fields forwarded to the parser. A descriptor carrying a
// RedisKey names a short-lived inline blob that the Dispatcher must move
// to the object store before any Processor sees it.
type Descriptor struct {
	UploadID    int64          `json:"upload_id"`
	ReportCode  string         `json:"report_code,omitempty"`
	RedisKey    string         `json:"redis_key,omitempty"`
	StoragePath string         `json:"storage_path,omitempty"`
	Extra       map[string]any `json:"-"`
}

// ParseDescriptor decodes a raw queue entry, preserving any fields beyond
// the ones the core names into Extra so they still reach the parser.
func ParseDescriptor(raw []byte) (Descriptor, error) {
	var fields map[string]any

	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return Descriptor{}, fmt.Errorf("pipeline: parse descriptor: %w", err)
	}

	d := Descriptor{Extra: fields}

	if v, ok := fields["upload_id"].(float64); ok {
		d.UploadID = int64(v)
	}

	if v, ok := fields["report_code"].(string); ok {
		d.ReportCode = v
	}

	if v, ok := fields["redis_key"].(string); ok {
		d.RedisKey = v
		delete(d.Extra, "redis_key")
	}

	if v, ok := fields["storage_path"].(string); ok {
		d.StoragePath = v
	}

	return d, nil
}

// WithStoragePath returns a copy of the descriptor with StoragePath set and
// RedisKey cleared, as the Dispatcher does after moving an inline blob to
// stable storage.
func (d Descriptor) WithStoragePath(path string) Descriptor {
	d.StoragePath = path
	d.RedisKey = ""

	return d
}
