package workflow

import (
	"context"

	"spectrail/internal/agentloop"
	"spectrail/internal/chatprovider"
	"spectrail/internal/model"
	"spectrail/internal/runlog"
	"spectrail/internal/toolregistry"
)

// providerAdapter lets chatprovider.Client satisfy agentloop.ChatProvider,
// translating between the two packages' otherwise-identical message shapes
// — kept distinct so agentloop does not import chatprovider directly
// (spec.md §9: AgentLoop depends only on the narrow interfaces it declares).
type providerAdapter struct{ client *chatprovider.Client }

func (p providerAdapter) ChatWithTools(ctx context.Context, messages []agentloop.ChatMessage, tools []toolregistry.Schema) (agentloop.AssistantTurn, error) {
	wire := make([]chatprovider.ChatMessage, len(messages))
	for i, m := range messages {
		wire[i] = toWireMessage(m)
	}
	turn, err := p.client.ChatWithTools(ctx, wire, tools)
	if err != nil {
		return agentloop.AssistantTurn{}, err
	}
	out := agentloop.AssistantTurn{ToolCalls: toLoopToolCalls(turn.ToolCalls)}
	if turn.Content != nil {
		out.Content = *turn.Content
		out.HasContent = true
	}
	return out, nil
}

func toWireMessage(m agentloop.ChatMessage) chatprovider.ChatMessage {
	wm := chatprovider.ChatMessage{Role: m.Role}
	if !(m.Role == "assistant" && m.Content == "" && len(m.ToolCalls) > 0) {
		content := m.Content
		wm.Content = &content
	}
	if m.ToolCallID != "" {
		id := m.ToolCallID
		wm.ToolCallID = &id
	}
	if len(m.ToolCalls) > 0 {
		wm.ToolCalls = make([]chatprovider.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			wm.ToolCalls[i] = chatprovider.ToolCall{ID: tc.ID, Type: "function", Function: chatprovider.ToolCallFunc{Name: tc.Name, Arguments: tc.Arguments}}
		}
	}
	return wm
}

func toLoopToolCalls(in []chatprovider.ToolCall) []agentloop.ToolCall {
	out := make([]agentloop.ToolCall, len(in))
	for i, tc := range in {
		out[i] = agentloop.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return out
}

// persistenceAdapter lets runlog.RunLog satisfy agentloop.Persistence.
type persistenceAdapter struct{ log *runlog.RunLog }

func (p persistenceAdapter) AppendMessage(ctx context.Context, runID string, role model.MessageRole, content string) (model.Message, error) {
	return p.log.AppendMessage(ctx, runID, role, content)
}

func (p persistenceAdapter) AppendStep(ctx context.Context, runID string, assistantContent string, toolCalls []agentloop.ToolCallWrite) (model.Message, []model.ToolCall, error) {
	writes := make([]runlog.ToolCallWrite, len(toolCalls))
	for i, w := range toolCalls {
		writes[i] = runlog.ToolCallWrite{Name: w.Name, ArgsJSON: w.ArgsJSON, ResultJSON: w.ResultJSON}
	}
	return p.log.AppendStep(ctx, runID, assistantContent, writes)
}
