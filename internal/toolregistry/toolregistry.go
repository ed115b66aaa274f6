// Package toolregistry holds the JSON-Schema tool declarations sent to the
// provider and the name→handler dispatch table, keeping them in 1:1
// correspondence per spec.md §4.5.
//
// Grounded on original_source/src-tauri/src/repo_tools/schemas.rs for the
// schema shapes and internal/app/tools.go for the Go-side
// name→ToolExecutor registry idiom (a map built once, looked up by name).
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"

	"spectrail/internal/coreerr"
	"spectrail/internal/repotools"
)

// Schema is the {"type":"function","function":{...}} shape the provider's
// `tools` array carries, per spec.md §6.
type Schema struct {
	Type     string         `json:"type"`
	Function SchemaFunction `json:"function"`
}

// SchemaFunction is the inner function declaration.
type SchemaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Handler dispatches one tool call's arguments to its implementation.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Registry is the name→schema / name→handler table.
type Registry struct {
	schemas  []Schema
	handlers map[string]Handler
}

func mustSchema(name, desc, paramsJSON string) Schema {
	return Schema{
		Type: "function",
		Function: SchemaFunction{
			Name:        name,
			Description: desc,
			Parameters:  json.RawMessage(paramsJSON),
		},
	}
}

// New builds the registry for the frozen RepoTools contract, wiring each
// schema to the matching repotools.RepoTools method.
func New(tools *repotools.RepoTools) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}

	r.register(mustSchema("list_files",
		"List files in the repository, pruned of common junk directories. .gitignore rules are not applied.",
		`{"type":"object","properties":{"project_id":{"type":"string"},"globs":{"type":"array","items":{"type":"string"}},"max_files":{"type":"integer"}},"required":["project_id"]}`,
	), tools.ListFiles)

	r.register(mustSchema("read_file",
		"Read a file's contents relative to the repository root. Binary files are reported without content.",
		`{"type":"object","properties":{"project_id":{"type":"string"},"path":{"type":"string"},"max_bytes":{"type":"integer"}},"required":["project_id","path"]}`,
	), tools.ReadFile)

	r.register(mustSchema("grep",
		"Search file contents for a query string, returning path:line:text results.",
		`{"type":"object","properties":{"project_id":{"type":"string"},"query":{"type":"string"},"path":{"type":"string"},"max_results":{"type":"integer"}},"required":["project_id","query"]}`,
	), tools.Grep)

	r.register(mustSchema("git_status",
		"Show the working tree status (git status --porcelain=v1 -b).",
		`{"type":"object","properties":{"project_id":{"type":"string"}},"required":["project_id"]}`,
	), tools.GitStatus)

	r.register(mustSchema("git_diff",
		"Show the working tree diff, optionally staged only.",
		`{"type":"object","properties":{"project_id":{"type":"string"},"staged":{"type":"boolean"}},"required":["project_id"]}`,
	), tools.GitDiff)

	r.register(mustSchema("git_log_short",
		"Show the N most recent commits in oneline form.",
		`{"type":"object","properties":{"project_id":{"type":"string"},"max_commits":{"type":"integer"}},"required":["project_id"]}`,
	), tools.GitLogShort)

	r.register(mustSchema("run_command",
		"Run an allow-listed tests/lint/build command, auto-detecting the project's runner from its lockfile.",
		`{"type":"object","properties":{"project_id":{"type":"string"},"kind":{"type":"string","enum":["tests","lint","build"]},"runner":{"type":"string","enum":["pnpm","npm","yarn","cargo","pytest","python"]}},"required":["project_id","kind"]}`,
	), tools.RunCommand)

	return r
}

func (r *Registry) register(s Schema, handler func(context.Context, json.RawMessage) (json.RawMessage, error)) {
	r.schemas = append(r.schemas, s)
	r.handlers[s.Function.Name] = handler
}

// Schemas returns the tool declarations in registration order, to be passed
// verbatim as the provider request's `tools` field.
func (r *Registry) Schemas() []Schema {
	return r.schemas
}

// Dispatch validates that name is known and invokes its handler. An unknown
// name returns coreerr.ErrUnknownTool; argument validation happens inside
// each handler (coreerr.ErrInvalidArgs).
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerr.ErrUnknownTool, name)
	}
	return handler(ctx, args)
}
