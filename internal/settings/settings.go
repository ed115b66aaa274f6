// Package settings implements the flat Settings key/value store consumed by
// the Core for provider configuration (spec.md §6), plus the Snapshot type
// that captures it once at run start per spec.md §9's design note: Settings
// are process-wide but not mutable-from-anywhere — never re-read mid-run.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"spectrail/internal/coreerr"
)

// Keys are the Settings keys the Core consumes, with their defaults
// (spec.md §6).
const (
	KeyProviderName      = "provider_name"
	KeyBaseURL           = "base_url"
	KeyModel             = "model"
	KeyAPIKey            = "api_key"
	KeyTemperature       = "temperature"
	KeyMaxTokens         = "max_tokens"
	KeyExtraHeadersJSON  = "extra_headers_json"
	KeyDevMode           = "dev_mode"
)

var defaults = map[string]string{
	KeyProviderName:     "openai",
	KeyBaseURL:          "https://api.openai.com/v1",
	KeyModel:            "gpt-4o",
	KeyAPIKey:           "",
	KeyTemperature:      "0.2",
	KeyMaxTokens:        "4000",
	KeyExtraHeadersJSON: "{}",
	KeyDevMode:          "0",
}

// EnvAPIKeyFallback is the environment variable consulted when the stored
// api_key setting is empty (spec.md §6).
const EnvAPIKeyFallback = "SPECTRAIL_API_KEY"

// Store is the durable Settings KV store.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns a setting's value, falling back to its default if unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaults[key], nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return value, nil
}

// validateValue enforces spec.md §6's per-key constraints ("base_url must
// start with http:// or https://"; "temperature: numeric, in [0, 2]") at
// write time, so a bad value never reaches a Snapshot in the first place.
// Keys spec.md places no constraint on pass through unchecked.
func validateValue(key, value string) error {
	switch key {
	case KeyBaseURL:
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%w: base_url %q must start with http:// or https://", coreerr.ErrInvalidArgs, value)
		}
	case KeyTemperature:
		temperature, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: temperature %q is not numeric", coreerr.ErrInvalidArgs, value)
		}
		if temperature < 0 || temperature > 2 {
			return fmt.Errorf("%w: temperature %v is outside [0, 2]", coreerr.ErrInvalidArgs, temperature)
		}
	}
	return nil
}

// BulkUpsert writes every (key, value) pair or none: a transaction failure
// midway leaves the store unchanged (spec.md §8 invariant 5). Every pair is
// validated before the transaction opens, so an invalid value never
// partially lands either.
func (s *Store) BulkUpsert(ctx context.Context, pairs map[string]string) error {
	for key, value := range pairs {
		if err := validateValue(key, value); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range pairs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return nil
}

// Snapshot is the immutable, captured-once-at-run-start view of Settings
// that the rest of the Core depends on — never re-read mid-run.
type Snapshot struct {
	ProviderName      string
	BaseURL           string
	Model             string
	APIKey            string
	Temperature       float64
	MaxTokens         int
	ExtraHeaders      map[string]string
	DevMode           bool
}

// LoadSnapshot reads every Settings key once and resolves the api_key
// fallback precedence from original_source/src-tauri/src/workflows/plan.rs's
// get_api_key: prefer the non-empty stored value, else SPECTRAIL_API_KEY,
// else coreerr.ErrInvalidCredentials.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	get := func(key string) (string, error) { return s.Get(ctx, key) }

	providerName, err := get(KeyProviderName)
	if err != nil {
		return Snapshot{}, err
	}
	baseURL, err := get(KeyBaseURL)
	if err != nil {
		return Snapshot{}, err
	}
	if err := validateValue(KeyBaseURL, baseURL); err != nil {
		return Snapshot{}, err
	}
	modelName, err := get(KeyModel)
	if err != nil {
		return Snapshot{}, err
	}
	apiKey, err := get(KeyAPIKey)
	if err != nil {
		return Snapshot{}, err
	}
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKeyFallback)
	}
	if apiKey == "" {
		return Snapshot{}, fmt.Errorf("%w: no api_key setting and %s is unset", coreerr.ErrInvalidCredentials, EnvAPIKeyFallback)
	}

	tempStr, err := get(KeyTemperature)
	if err != nil {
		return Snapshot{}, err
	}
	if err := validateValue(KeyTemperature, tempStr); err != nil {
		return Snapshot{}, err
	}
	temperature, _ := strconv.ParseFloat(tempStr, 64) // validated above

	maxTokensStr, err := get(KeyMaxTokens)
	if err != nil {
		return Snapshot{}, err
	}
	maxTokens, err := strconv.Atoi(maxTokensStr)
	if err != nil || maxTokens <= 0 {
		return Snapshot{}, fmt.Errorf("%w: max_tokens %q is not a positive integer", coreerr.ErrInvalidArgs, maxTokensStr)
	}

	extraHeadersJSON, err := get(KeyExtraHeadersJSON)
	if err != nil {
		return Snapshot{}, err
	}
	extraHeaders, err := parseExtraHeaders(extraHeadersJSON)
	if err != nil {
		return Snapshot{}, err
	}

	devModeStr, err := get(KeyDevMode)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		ProviderName: providerName,
		BaseURL:      baseURL,
		Model:        modelName,
		APIKey:       apiKey,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		ExtraHeaders: extraHeaders,
		DevMode:      devModeStr == "1",
	}, nil
}

// parseExtraHeaders keeps only string-valued members, mirroring
// original_source/src-tauri/src/llm/client.rs's header merge: a non-string
// value is silently skipped rather than erroring the whole snapshot.
func parseExtraHeaders(raw string) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("%w: extra_headers_json must be a JSON object: %v", coreerr.ErrInvalidArgs, err)
	}
	out := make(map[string]string)
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
		}
	}
	return out, nil
}
