package agentloop

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"spectrail/internal/model"
	"spectrail/internal/toolregistry"
)

// fakeProvider replays a scripted sequence of turns, one per call.
type fakeProvider struct {
	turns []AssistantTurn
	calls int
}

func (f *fakeProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []toolregistry.Schema) (AssistantTurn, error) {
	if f.calls >= len(f.turns) {
		return AssistantTurn{Content: "out of turns", HasContent: true}, nil
	}
	turn := f.turns[f.calls]
	f.calls++
	return turn, nil
}

// repeatingProvider always returns the same turn — used for the iteration
// cap scenario.
type repeatingProvider struct{ turn AssistantTurn }

func (r *repeatingProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []toolregistry.Schema) (AssistantTurn, error) {
	return r.turn, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Schemas() []toolregistry.Schema { return nil }
func (fakeRegistry) Dispatch(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"files":["README.md"]}`), nil
}

// memPersistence is an in-memory Persistence for tests.
type memPersistence struct {
	mu        sync.Mutex
	messages  []model.Message
	toolCalls []model.ToolCall
}

func (m *memPersistence) AppendMessage(ctx context.Context, runID string, role model.MessageRole, content string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := model.Message{ID: uuid.NewString(), RunID: runID, Role: role, Content: content}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memPersistence) AppendStep(ctx context.Context, runID string, assistantContent string, toolCalls []ToolCallWrite) (model.Message, []model.ToolCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assistant, _ := m.appendUnlocked(runID, model.RoleAssistant, assistantContent)
	var rows []model.ToolCall
	for _, w := range toolCalls {
		tc := model.ToolCall{ID: uuid.NewString(), RunID: runID, Name: w.Name, ArgsJSON: w.ArgsJSON, ResultJSON: w.ResultJSON}
		m.toolCalls = append(m.toolCalls, tc)
		rows = append(rows, tc)
		m.appendUnlocked(runID, model.RoleTool, w.ResultJSON)
	}
	return assistant, rows, nil
}

func (m *memPersistence) appendUnlocked(runID string, role model.MessageRole, content string) (model.Message, error) {
	msg := model.Message{ID: uuid.NewString(), RunID: runID, Role: role, Content: content}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func strPtr(s string) *string { return &s }

func TestRun_PlanHappyPath(t *testing.T) {
	provider := &fakeProvider{turns: []AssistantTurn{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "list_files", Arguments: `{}`}}},
		{ToolCalls: []ToolCall{{ID: "c2", Name: "read_file", Arguments: `{"path":"README.md"}`}}},
		{Content: "# Implementation Plan: X\n## 1. Summary\n…", HasContent: true},
	}}
	persistence := &memPersistence{}
	loop := New(provider, fakeRegistry{}, persistence, "proj-1", zerolog.Nop())

	seed := []ChatMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: "user"}}
	result, err := loop.Run(context.Background(), "run-1", seed)
	require.NoError(t, err)
	require.False(t, result.Truncated)
	require.Equal(t, 2, result.ToolCallsCount)
	require.Contains(t, result.FinalContent, "# Implementation Plan")
	require.Len(t, persistence.toolCalls, 2)
}

func TestRun_IterationCap(t *testing.T) {
	provider := &repeatingProvider{turn: AssistantTurn{ToolCalls: []ToolCall{{ID: "c", Name: "list_files", Arguments: `{}`}}}}
	persistence := &memPersistence{}
	loop := New(provider, fakeRegistry{}, persistence, "proj-1", zerolog.Nop())

	seed := []ChatMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: "user"}}
	result, err := loop.Run(context.Background(), "run-1", seed)
	require.NoError(t, err)
	require.True(t, result.Truncated)
	require.Empty(t, result.FinalContent)
	require.Equal(t, MaxIterations, result.ToolCallsCount)
	require.Len(t, persistence.toolCalls, MaxIterations)
}

func TestRun_ContextCapPrunesBeforeCall(t *testing.T) {
	provider := &fakeProvider{turns: []AssistantTurn{
		{Content: "final", HasContent: true},
	}}
	persistence := &memPersistence{}
	loop := New(provider, fakeRegistry{}, persistence, "proj-1", zerolog.Nop())

	bigUser := strings.Repeat("a", 200000)
	seed := []ChatMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: bigUser}}
	result, err := loop.Run(context.Background(), "run-1", seed)
	require.NoError(t, err)
	require.True(t, result.Truncated)
}

func TestInjectProjectID_OmittedIsFilledIn(t *testing.T) {
	out := injectProjectID(`{"path":"a"}`, "proj-1")
	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &obj))
	require.Equal(t, "proj-1", obj["project_id"])
}

func TestInjectProjectID_PresentIsKept(t *testing.T) {
	out := injectProjectID(`{"project_id":"explicit"}`, "proj-1")
	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &obj))
	require.Equal(t, "explicit", obj["project_id"])
}
