// Package settingsfile bootstraps a local YAML file of Settings defaults
// that seed the SQLite-backed Settings table on first run. It never
// supersedes the database: once seeded, spec.md §9's snapshot-at-run-start
// invariant governs, not this file.
//
// Grounded on internal/app/config.go's LoadConfig/SaveConfig (binary-
// directory-first path resolution, a typed struct decoded with yaml.v3,
// fall back to an explicit path, tolerate a missing file).
package settingsfile

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"spectrail/internal/settings"
)

// File is the bootstrap shape, one field per Settings key spec.md §6 names.
type File struct {
	ProviderName string `yaml:"provider_name"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	Temperature  string `yaml:"temperature"`
	MaxTokens    string `yaml:"max_tokens"`
	ExtraHeaders string `yaml:"extra_headers_json"`
	DevMode      string `yaml:"dev_mode"`
}

const bootstrapFilename = "spectrail_settings.yaml"

// Load reads the bootstrap YAML file, preferring the file next to the
// running binary (installed layout) and falling back to an explicit path.
// A missing file at either location is not an error: it means there is
// nothing to seed, and the Settings table's own defaults apply.
func Load(explicitPath string) (File, bool, error) {
	if execPath, err := os.Executable(); err == nil {
		binaryPath := filepath.Join(filepath.Dir(execPath), bootstrapFilename)
		if data, err := os.ReadFile(binaryPath); err == nil {
			var f File
			if err := yaml.Unmarshal(data, &f); err != nil {
				return File{}, false, err
			}
			return f, true, nil
		}
	}

	if explicitPath == "" {
		return File{}, false, nil
	}
	data, err := os.ReadFile(explicitPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, false, nil
		}
		return File{}, false, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, false, err
	}
	return f, true, nil
}

// Save writes f to the binary-directory bootstrap path, falling back to an
// explicit path if the binary's directory is not writable.
func Save(f File, explicitPath string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if execPath, err := os.Executable(); err == nil {
		binaryPath := filepath.Join(filepath.Dir(execPath), bootstrapFilename)
		if err := os.WriteFile(binaryPath, data, 0o644); err == nil {
			return nil
		}
	}
	if explicitPath == "" {
		return errors.New("settingsfile: no path available to save bootstrap settings")
	}
	return os.WriteFile(explicitPath, data, 0o644)
}

// ToPairs converts non-empty File fields into the key/value pairs
// settings.Store.BulkUpsert expects, skipping fields left blank so an
// incomplete bootstrap file never clobbers an already-configured key.
func (f File) ToPairs() map[string]string {
	pairs := make(map[string]string)
	add := func(key, value string) {
		if value != "" {
			pairs[key] = value
		}
	}
	add(settings.KeyProviderName, f.ProviderName)
	add(settings.KeyBaseURL, f.BaseURL)
	add(settings.KeyModel, f.Model)
	add(settings.KeyAPIKey, f.APIKey)
	add(settings.KeyTemperature, f.Temperature)
	add(settings.KeyMaxTokens, f.MaxTokens)
	add(settings.KeyExtraHeadersJSON, f.ExtraHeaders)
	add(settings.KeyDevMode, f.DevMode)
	return pairs
}
