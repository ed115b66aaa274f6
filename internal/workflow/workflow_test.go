package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"spectrail/internal/chatprovider"
	"spectrail/internal/dbstore"
	"spectrail/internal/model"
	"spectrail/internal/runlog"
	"spectrail/internal/settings"
	"spectrail/internal/store"
)

// newTestFacade wires a Facade against a fresh, migrated SQLite file and a
// Project whose repo root is a real temp directory.
func newTestFacade(t *testing.T) (*Facade, *settings.Store, *store.Store, *runlog.RunLog, model.Project) {
	t.Helper()
	db, err := dbstore.Open(filepath.Join(t.TempDir(), "spectrail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	settingsStore := settings.New(db)
	projectStore := store.New(db)
	log := runlog.New(db)

	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "README.md"), []byte("# Demo\n"), 0o644))

	project, err := projectStore.CreateProject(context.Background(), "demo", repoRoot)
	require.NoError(t, err)

	return New(settingsStore, projectStore, log), settingsStore, projectStore, log, project
}

func seedSettings(t *testing.T, s *settings.Store, baseURL string) {
	t.Helper()
	require.NoError(t, s.BulkUpsert(context.Background(), map[string]string{
		settings.KeyProviderName: "openai",
		settings.KeyBaseURL:      baseURL,
		settings.KeyModel:        "gpt-4o",
		settings.KeyAPIKey:       "sk-test",
		settings.KeyTemperature:  "0.2",
		settings.KeyMaxTokens:    "4000",
	}))
}

func chatResponseBody(msg chatprovider.ChatMessage) []byte {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": msg}},
	})
	return body
}

func strPtr(s string) *string { return &s }

// TestGeneratePlan_HappyPath scripts a provider that lists files, reads one,
// then emits the final plan — mirroring spec.md §8's plan happy-path
// scenario end to end against real persistence.
func TestGeneratePlan_HappyPath(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch n {
		case 1:
			w.Write(chatResponseBody(chatprovider.ChatMessage{
				Role: "assistant",
				ToolCalls: []chatprovider.ToolCall{{ID: "c1", Type: "function", Function: chatprovider.ToolCallFunc{Name: "list_files", Arguments: `{}`}}},
			}))
		case 2:
			w.Write(chatResponseBody(chatprovider.ChatMessage{
				Role: "assistant",
				ToolCalls: []chatprovider.ToolCall{{ID: "c2", Type: "function", Function: chatprovider.ToolCallFunc{Name: "read_file", Arguments: `{"path":"README.md"}`}}},
			}))
		default:
			w.Write(chatResponseBody(chatprovider.ChatMessage{
				Role:    "assistant",
				Content: strPtr("# Implementation Plan: Demo\n## 1. Summary\nDone."),
			}))
		}
	}))
	defer srv.Close()

	facade, settingsStore, projectStore, _, project := newTestFacade(t)
	seedSettings(t, settingsStore, srv.URL)

	task, err := projectStore.CreateTask(context.Background(), project.ID, "Add feature", model.TaskModePlan)
	require.NoError(t, err)

	result, err := facade.GeneratePlan(context.Background(), project.ID, task.ID)
	require.NoError(t, err)
	require.False(t, result.Truncated)
	require.Equal(t, 2, result.ToolCallsCount)
	require.Contains(t, result.PlanMD, "# Implementation Plan")

	art, ok, err := facade.Log.GetArtifact(context.Background(), task.ID, model.ArtifactPlanMD)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, result.PlanMD, art.Content)
}

// TestGeneratePlan_Provider401 mirrors spec.md §8's "Provider 401" scenario:
// GeneratePlan returns an error and no Artifact is written.
func TestGeneratePlan_Provider401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	facade, settingsStore, projectStore, log, project := newTestFacade(t)
	seedSettings(t, settingsStore, srv.URL)

	task, err := projectStore.CreateTask(context.Background(), project.ID, "Add feature", model.TaskModePlan)
	require.NoError(t, err)

	_, err = facade.GeneratePlan(context.Background(), project.ID, task.ID)
	require.Error(t, err)

	_, ok, err := log.GetArtifact(context.Background(), task.ID, model.ArtifactPlanMD)
	require.NoError(t, err)
	require.False(t, ok, "no artifact should be written on a fatal provider error")
}

// TestVerifyTask_HappyPath mirrors spec.md §8's verify happy-path scenario:
// a single no-tools LLM call over pre-fetched git context.
func TestVerifyTask_HappyPath(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Nil(t, body["tools"], "verify must not hand the model a tools array")
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatResponseBody(chatprovider.ChatMessage{
			Role:    "assistant",
			Content: strPtr("# Verification Report\n## 1. Compliance\nLooks fine."),
		}))
	}))
	defer srv.Close()

	facade, settingsStore, projectStore, _, project := newTestFacade(t)
	seedSettings(t, settingsStore, srv.URL)

	task, err := projectStore.CreateTask(context.Background(), project.ID, "Add feature", model.TaskModePlan)
	require.NoError(t, err)

	result, err := facade.VerifyTask(context.Background(), project.ID, task.ID, VerifyOptions{})
	require.NoError(t, err)
	require.Contains(t, result.Report, "# Verification Report")
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	art, ok, err := facade.Log.GetArtifact(context.Background(), task.ID, model.ArtifactVerificationReport)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, result.Report, art.Content)
}
