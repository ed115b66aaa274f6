package workflow

import (
	"context"

	"spectrail/internal/model"
)

// ListMessages implements the list_messages(run_id) read query (spec.md
// §6's external interface list).
func (f *Facade) ListMessages(ctx context.Context, runID string) ([]model.Message, error) {
	return f.Log.ListMessages(ctx, runID)
}

// ListToolCalls implements the list_tool_calls(run_id) read query.
func (f *Facade) ListToolCalls(ctx context.Context, runID string) ([]model.ToolCall, error) {
	return f.Log.ListToolCalls(ctx, runID)
}

// ListArtifacts implements the list_artifacts(task_id) read query.
func (f *Facade) ListArtifacts(ctx context.Context, taskID string) ([]model.Artifact, error) {
	return f.Log.ListArtifacts(ctx, taskID)
}
