// Package repoconfig loads and layers the per-owner/per-repo/per-commit
// YAML configuration surface named in spec §6, following the same
// viper-plus-mapstructure idiom as pkg/config.LoadConfig.
package repoconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrNegativeAfterNBuilds = errors.New("notify.after_n_builds must be non-negative")
	ErrNegativeDebounce     = errors.New("upload_processing_delay must be non-negative")
)

// Default configuration values.
const (
	defaultAfterNBuilds          = 0
	defaultWaitForCI             = true
	defaultRequireCIToPass       = true
	defaultArchiveUploads        = true
	defaultUploadProcessingDelay = 30
)

// NotifyConfig holds the options of the top-level `notify` section. Keys
// nested under a `codecov:` section are not read here; they land in Extra.
type NotifyConfig struct {
	AfterNBuilds  int  `mapstructure:"after_n_builds"`
	ManualTrigger bool `mapstructure:"manual_trigger"`
	NotifyError   bool `mapstructure:"notify_error"`
	WaitForCI     bool `mapstructure:"wait_for_ci"`
}

// ArchiveConfig holds the options of the top-level `archive` section.
type ArchiveConfig struct {
	Uploads bool `mapstructure:"uploads"`
}

// SetupConfig holds the `setup.*` options.
type SetupConfig struct {
	UploadProcessingDelaySeconds int `mapstructure:"upload_processing_delay"`
}

// RepoConfig is the typed, merged configuration surface recognised by the
// pipeline. Unknown keys are preserved in Extra rather than rejected,
// matching viper's permissive merge behaviour.
type RepoConfig struct {
	Notify          NotifyConfig  `mapstructure:"notify"`
	Archive         ArchiveConfig `mapstructure:"archive"`
	Setup           SetupConfig   `mapstructure:"setup"`
	RequireCIToPass bool          `mapstructure:"require_ci_to_pass"`
	Extra           map[string]any `mapstructure:",remain"`
}

// Load layers owner, repo, and commit-level YAML documents (each may be
// nil/empty) into a single validated RepoConfig, most-specific last.
func Load(ownerYAML, repoYAML, commitYAML []byte) (*RepoConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for _, layer := range [][]byte{ownerYAML, repoYAML, commitYAML} {
		if len(layer) == 0 {
			continue
		}

		err := v.MergeConfig(newReader(layer))
		if err != nil {
			return nil, fmt.Errorf("repoconfig: merge layer: %w", err)
		}
	}

	var cfg RepoConfig

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("repoconfig: unmarshal: %w", err)
	}

	err = validate(&cfg)
	if err != nil {
		return nil, fmt.Errorf("repoconfig: invalid: %w", err)
	}

	return &cfg, nil
}

func newReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("notify.after_n_builds", defaultAfterNBuilds)
	v.SetDefault("notify.manual_trigger", false)
	v.SetDefault("notify.notify_error", false)
	v.SetDefault("notify.wait_for_ci", defaultWaitForCI)
	v.SetDefault("archive.uploads", defaultArchiveUploads)
	v.SetDefault("setup.upload_processing_delay", defaultUploadProcessingDelay)
	v.SetDefault("require_ci_to_pass", defaultRequireCIToPass)
}

func validate(cfg *RepoConfig) error {
	if cfg.Notify.AfterNBuilds < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAfterNBuilds, cfg.Notify.AfterNBuilds)
	}

	if cfg.Setup.UploadProcessingDelaySeconds < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeDebounce, cfg.Setup.UploadProcessingDelaySeconds)
	}

	return nil
}
