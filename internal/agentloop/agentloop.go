// Package agentloop implements the AgentLoop state machine: the bounded
// tool-calling driver that is the heart of the Core (spec.md §4.9).
//
// Grounded on original_source/src-tauri/src/workflows/plan.rs for the exact
// control flow (iteration/context caps, message pruning, tool-call
// sequencing, final-content extraction) and internal/app/agent.go for the
// teacher's Go-side loop shape (an Execute method stepping a small state
// struct) — though the teacher's tool-calling is ad hoc text parsing, not
// the structured tool_calls protocol this loop drives.
//
// Per spec.md §9's design note, AgentLoop depends only on the narrow
// ChatProvider and ToolRegistry interfaces below, never on the facade.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"spectrail/internal/coreerr"
	"spectrail/internal/model"
	"spectrail/internal/outputbounder"
	"spectrail/internal/toolregistry"
)

// MaxIterations is the hard cap on assistant turns per run (spec.md §4.9).
const MaxIterations = 12

// MaxContextChars is the hard cap on summed message content length before
// AgentLoop prunes (spec.md §4.9).
const MaxContextChars = 100000

// toolResultCap bounds each persisted tool message's content.
const toolResultCap = 50000

// ChatMessage mirrors chatprovider.ChatMessage; agentloop does not import
// chatprovider to keep its dependency surface narrow, per spec.md §9.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is one assistant-issued function call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded object
}

// AssistantTurn is what ChatProvider returns for one request.
type AssistantTurn struct {
	Content   string
	HasContent bool
	ToolCalls []ToolCall
}

// ChatProvider is the narrow remote-call interface AgentLoop depends on.
type ChatProvider interface {
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []toolregistry.Schema) (AssistantTurn, error)
}

// ToolRegistry is the narrow dispatch interface AgentLoop depends on.
type ToolRegistry interface {
	Schemas() []toolregistry.Schema
	Dispatch(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Persistence is the narrow RunLog slice AgentLoop writes through.
type Persistence interface {
	AppendMessage(ctx context.Context, runID string, role model.MessageRole, content string) (model.Message, error)
	AppendStep(ctx context.Context, runID string, assistantContent string, toolCalls []ToolCallWrite) (model.Message, []model.ToolCall, error)
}

// ToolCallWrite mirrors runlog.ToolCallWrite; kept local so agentloop does
// not import runlog directly.
type ToolCallWrite struct {
	Name       string
	ArgsJSON   string
	ResultJSON string
}

// Loop drives one run to completion.
type Loop struct {
	Provider         ChatProvider
	Tools            ToolRegistry
	Log              Persistence
	DefaultProjectID string // injected into tool args that omit project_id
	logger           zerolog.Logger
}

// New builds a Loop. logger is expected to already carry run_id/task_id
// fields (obslog.ForRun); pass zerolog.Nop() to discard loop events.
func New(provider ChatProvider, tools ToolRegistry, log Persistence, defaultProjectID string, logger zerolog.Logger) *Loop {
	return &Loop{Provider: provider, Tools: tools, Log: log, DefaultProjectID: defaultProjectID, logger: logger}
}

// Result is what Run hands back to the WorkflowFacade.
type Result struct {
	FinalContent   string
	ToolCallsCount int
	Truncated      bool
}

// Run executes the state machine for runID, starting from seedMessages
// (already the system+user pair the caller has persisted via INIT). It
// returns the final assistant content (plan markdown or verification
// report) or a fatal error if the provider/tool layer aborted.
func (l *Loop) Run(ctx context.Context, runID string, seedMessages []ChatMessage) (Result, error) {
	l.logger.Info().Int("seed_messages", len(seedMessages)).Msg("run started")

	messages := append([]ChatMessage{}, seedMessages...)
	schemas := l.Tools.Schemas()

	var toolCallsCount int
	var truncated bool

	for iteration := 0; iteration < MaxIterations; iteration++ {
		var pruned bool
		messages, pruned = pruneIfOverCap(messages)
		if pruned {
			truncated = true
			l.logger.Warn().Int("iteration", iteration).Msg("context cap exceeded, pruning messages")
		}

		turn, err := l.Provider.ChatWithTools(ctx, messages, schemas)
		if err != nil {
			l.logger.Error().Err(err).Int("iteration", iteration).Msg("provider call failed, aborting run")
			return Result{}, err // fatal: ABORT state, caller closes the run
		}

		if len(turn.ToolCalls) == 0 {
			final := turn.Content
			if _, err := l.Log.AppendMessage(ctx, runID, model.RoleAssistant, final); err != nil {
				return Result{}, err
			}
			l.logger.Info().Int("iteration", iteration).Int("tool_calls", toolCallsCount).Bool("truncated", truncated).Msg("run finished")
			return Result{FinalContent: final, ToolCallsCount: toolCallsCount, Truncated: truncated}, nil
		}

		assistantContent := turn.Content
		if assistantContent == "" {
			names := make([]string, len(turn.ToolCalls))
			for i, tc := range turn.ToolCalls {
				names[i] = tc.Name
			}
			assistantContent = "Calling tools: " + strings.Join(names, ", ")
		}

		writes := make([]ToolCallWrite, 0, len(turn.ToolCalls))
		msgToolCalls := make([]ToolCall, 0, len(turn.ToolCalls))
		toolReplies := make([]ChatMessage, 0, len(turn.ToolCalls))

		for _, call := range turn.ToolCalls {
			args := injectProjectID(call.Arguments, l.DefaultProjectID)
			resultJSON, derr := l.Tools.Dispatch(ctx, call.Name, json.RawMessage(args))

			var content string
			if derr != nil {
				if isFatal(derr) {
					l.logger.Error().Err(derr).Str("tool", call.Name).Msg("tool dispatch failed fatally, aborting run")
					return Result{}, derr // RepoUnavailable / PersistenceError: ABORT
				}
				l.logger.Warn().Err(derr).Str("tool", call.Name).Msg("tool dispatch failed")
				content = fmt.Sprintf(`{"error":%q}`, derr.Error())
			} else {
				l.logger.Debug().Str("tool", call.Name).Msg("tool dispatched")
				content = string(resultJSON)
			}
			content, _, _ = outputbounder.Bound(content, toolResultCap)

			writes = append(writes, ToolCallWrite{Name: call.Name, ArgsJSON: args, ResultJSON: content})
			msgToolCalls = append(msgToolCalls, call)
			toolReplies = append(toolReplies, ChatMessage{Role: "tool", Content: content, ToolCallID: call.ID})
			toolCallsCount++
		}

		if _, _, err := l.Log.AppendStep(ctx, runID, assistantContent, writes); err != nil {
			return Result{}, err
		}

		messages = append(messages, ChatMessage{Role: "assistant", Content: assistantContent, ToolCalls: msgToolCalls})
		messages = append(messages, toolReplies...)
	}

	// Iteration cap exhausted: this is not a fatal error — spec.md §4.9
	// says to force EMIT_ARTIFACT with whatever final content exists (here,
	// none, since every turn issued tool calls) and set truncated=true.
	l.logger.Warn().Int("tool_calls", toolCallsCount).Msg("iteration cap reached, truncating run")
	return Result{FinalContent: "", ToolCallsCount: toolCallsCount, Truncated: true}, nil
}

// pruneIfOverCap retains the system message (first) and the last six
// messages when the summed content length exceeds MaxContextChars. Prior
// pruned content is not restored (spec.md §4.9). Exceeding the cap always
// reports true, even when there are seven or fewer messages and so nothing
// can be dropped.
func pruneIfOverCap(messages []ChatMessage) ([]ChatMessage, bool) {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	if total <= MaxContextChars {
		return messages, false
	}
	if len(messages) <= 7 {
		return messages, true
	}
	kept := make([]ChatMessage, 0, 7)
	kept = append(kept, messages[0])
	kept = append(kept, messages[len(messages)-6:]...)
	return kept, true
}

func isFatal(err error) bool {
	return err != nil && (errIs(err, coreerr.ErrRepoUnavailable) || errIs(err, coreerr.ErrPersistence))
}

func errIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// injectProjectID parses argsJSON as an object and, if project_id is absent
// or empty, sets it to defaultProjectID (spec.md §4.9: "injected if the
// model omitted it").
func injectProjectID(argsJSON, defaultProjectID string) string {
	if argsJSON == "" {
		argsJSON = "{}"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(argsJSON), &obj); err != nil {
		return argsJSON
	}
	if raw, ok := obj["project_id"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return argsJSON
		}
	}
	obj["project_id"], _ = json.Marshal(defaultProjectID)
	out, err := json.Marshal(obj)
	if err != nil {
		return argsJSON
	}
	return string(out)
}
