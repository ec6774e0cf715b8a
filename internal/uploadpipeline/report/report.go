// Package report defines the PartialReport/MasterReport contracts the
// pipeline merges, plus a coverage-flavoured in-memory implementation
// sufficient to exercise the merge, session-allocation, and diff-apply
// operations the spec names without depending on a real coverage parser.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Session is one upload's contribution to a MasterReport: a named set of
// per-file line-hit counts plus the id it was assigned.
type Session struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Files    map[string][]int `json:"files"`
}

// Partial is the parsed-but-unmerged output of one upload. It supports
// SerializeChunks/SerializeMeta, DeserializePartial, Equal and Size;
// merging and diff application happen on Master.
type Partial struct {
	Chunks     map[string][]int `json:"chunks"`
	ReportJSON json.RawMessage  `json:"report_json"`
}

// Empty returns the zero-value PartialReport substituted when an
// IntermediateStore entry has expired or was never written.
func Empty() Partial {
	return Partial{Chunks: map[string][]int{}}
}

// Size returns an approximate in-memory byte size, used for the size
// histograms the spec requires before/after compression.
func (p Partial) Size() int {
	size := len(p.ReportJSON)
	for file, hits := range p.Chunks {
		size += len(file) + len(hits)*8
	}

	return size
}

// SerializeChunks and SerializeMeta split the partial report into the two
// fields the IntermediateReport hash entry stores (`chunks`, `report_json`),
// matching the original service's field split.
func (p Partial) SerializeChunks() ([]byte, error) {
	b, err := json.Marshal(p.Chunks)
	if err != nil {
		return nil, fmt.Errorf("report: serialize chunks: %w", err)
	}

	return b, nil
}

func (p Partial) SerializeMeta() ([]byte, error) {
	if p.ReportJSON == nil {
		return []byte("{}"), nil
	}

	return p.ReportJSON, nil
}

// DeserializePartial reconstructs a Partial from its two stored fields.
func DeserializePartial(chunks, meta []byte) (Partial, error) {
	var files map[string][]int

	err := json.Unmarshal(chunks, &files)
	if err != nil {
		return Partial{}, fmt.Errorf("report: deserialize chunks: %w", err)
	}

	return Partial{Chunks: files, ReportJSON: append(json.RawMessage(nil), meta...)}, nil
}

// Equal reports value-equality under the parser's own notion of equality
// (byte-equal chunk maps; report_json compared as parsed JSON, not bytes,
// since key order is not significant).
func (p Partial) Equal(other Partial) bool {
	if len(p.Chunks) != len(other.Chunks) {
		return false
	}

	for file, hits := range p.Chunks {
		otherHits, ok := other.Chunks[file]
		if !ok || len(hits) != len(otherHits) {
			return false
		}

		for i := range hits {
			if hits[i] != otherHits[i] {
				return false
			}
		}
	}

	return jsonEqual(p.ReportJSON, other.ReportJSON)
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any

	_ = json.Unmarshal(a, &av)
	_ = json.Unmarshal(b, &bv)

	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)

	return bytes.Equal(ab, bb)
}

// Master is the per-commit merged artifact. Merge is associative and
// commutative: applying a set of Partials in any order yields the same
// Master after Canonicalize.
type Master struct {
	Sessions      []Session `json:"sessions"`
	maxSessionID  int64
}

// NewMaster creates an empty master report.
func NewMaster() *Master {
	return &Master{}
}

// NextSessionID returns the next unused session id, tracking the running
// watermark across repeated calls on the same in-memory Master. Used in
// serial mode, where ids are assigned at merge time.
func (m *Master) NextSessionID() int64 {
	m.maxSessionID++

	return m.maxSessionID
}

// MergePartial folds one Partial report into the master under the given
// pre-allocated (or freshly assigned) session id. Merge is order-independent:
// sessions are appended and the final byte form only depends on the set of
// sessions, not the order MergePartial was called, once Canonicalize sorts
// them by id.
func (m *Master) MergePartial(sessionID int64, name string, p Partial) {
	m.Sessions = append(m.Sessions, Session{ID: sessionID, Name: name, Files: p.Chunks})

	if sessionID > m.maxSessionID {
		m.maxSessionID = sessionID
	}
}

// ApplyDiff appends provider-supplied added-line hints to the
// master's file line maps; a best-effort, coverage-only enrichment step
// that never fails the pipeline (missing files are skipped).
func (m *Master) ApplyDiff(addedLines map[string][]int) {
	for i := range m.Sessions {
		for file, lines := range addedLines {
			if _, ok := m.Sessions[i].Files[file]; ok {
				m.Sessions[i].Files[file] = append(m.Sessions[i].Files[file], lines...)
			}
		}
	}
}

// Canonicalize sorts sessions by id so two Masters built from the same set
// of Partials via different merge orders serialise identically.
func (m *Master) Canonicalize() {
	sort.Slice(m.Sessions, func(i, j int) bool { return m.Sessions[i].ID < m.Sessions[j].ID })
}

// Serialize renders the canonical byte form persisted to the object store.
func (m *Master) Serialize() ([]byte, error) {
	m.Canonicalize()

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("report: serialize master: %w", err)
	}

	return b, nil
}

// DeserializeMaster loads a Master from its persisted byte form.
func DeserializeMaster(data []byte) (*Master, error) {
	m := &Master{}

	err := json.Unmarshal(data, m)
	if err != nil {
		return nil, fmt.Errorf("report: deserialize master: %w", err)
	}

	for _, s := range m.Sessions {
		if s.ID > m.maxSessionID {
			m.maxSessionID = s.ID
		}
	}

	return m, nil
}

// SessionCount returns how many sessions the master currently holds, used
// by the `codecov.notify.after_n_builds` gate.
func (m *Master) SessionCount() int {
	return len(m.Sessions)
}
