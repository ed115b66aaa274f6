package runlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"spectrail/internal/dbstore"
	"spectrail/internal/model"
)

func newTestLog(t *testing.T) *RunLog {
	t.Helper()
	db, err := dbstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestOpenCloseRun(t *testing.T) {
	log := newTestLog(t)
	run, err := log.OpenRun(context.Background(), "task-1", nil, model.RunTypePlan, "openai", "gpt-4o")
	require.NoError(t, err)
	require.True(t, run.Open())

	require.NoError(t, log.CloseRun(context.Background(), run.ID))
}

func TestAppendStep_MessageToolCallParity(t *testing.T) {
	log := newTestLog(t)
	run, err := log.OpenRun(context.Background(), "task-1", nil, model.RunTypePlan, "openai", "gpt-4o")
	require.NoError(t, err)

	_, _, err = log.AppendStep(context.Background(), run.ID, "calling tools", []ToolCallWrite{
		{Name: "list_files", ArgsJSON: `{"project_id":"p1"}`, ResultJSON: `{"files":[]}`},
		{Name: "read_file", ArgsJSON: `{"project_id":"p1","path":"a"}`, ResultJSON: `{"content":"x"}`},
	})
	require.NoError(t, err)

	msgs, err := log.ListMessages(context.Background(), run.ID)
	require.NoError(t, err)
	toolCalls, err := log.ListToolCalls(context.Background(), run.ID)
	require.NoError(t, err)

	toolMsgCount := 0
	for _, m := range msgs {
		if m.Role == model.RoleTool {
			toolMsgCount++
		}
	}
	require.Equal(t, len(toolCalls), toolMsgCount)
	require.Len(t, toolCalls, 2)
}

func TestUpsertArtifact_RoundTripAndIdempotence(t *testing.T) {
	log := newTestLog(t)
	content := "# Implementation Plan: X"

	a1, err := log.UpsertArtifact(context.Background(), "task-1", nil, model.ArtifactPlanMD, content, false)
	require.NoError(t, err)

	got, ok, err := log.GetArtifact(context.Background(), "task-1", model.ArtifactPlanMD)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content, got.Content)

	a2, err := log.UpsertArtifact(context.Background(), "task-1", nil, model.ArtifactPlanMD, content, false)
	require.NoError(t, err)
	require.Equal(t, a1.ID, a2.ID) // id reused
	require.False(t, a2.CreatedAt.Before(a1.CreatedAt))

	artifacts, err := log.ListArtifacts(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, artifacts, 1) // replaced, not duplicated
}

func TestUpsertArtifact_NewContentReplacesPrevious(t *testing.T) {
	log := newTestLog(t)
	_, err := log.UpsertArtifact(context.Background(), "task-1", nil, model.ArtifactPlanMD, "v1", false)
	require.NoError(t, err)
	_, err = log.UpsertArtifact(context.Background(), "task-1", nil, model.ArtifactPlanMD, "v2", false)
	require.NoError(t, err)

	got, ok, err := log.GetArtifact(context.Background(), "task-1", model.ArtifactPlanMD)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", got.Content)
}
