// Package runlog implements the Durable Run Log: an append-only store of
// runs, messages, tool_calls, and artifacts, keyed so every agent step is
// replayable.
//
// Grounded on internal/app/session_store_sqlite.go for the Go/sql idiom
// (prepared statements via database/sql, sql.NullString for optional
// columns, a narrow method surface per entity) and
// original_source/src-tauri/src/workflows/plan.rs's save_artifact for the
// upsert-by-(task_id, kind) shape.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spectrail/internal/coreerr"
	"spectrail/internal/model"
)

const timeLayout = time.RFC3339Nano

// RunLog is the append-only store. It is single-writer within a process
// (spec.md §4.6); the underlying *sql.DB is opened by dbstore.Open with
// MaxOpenConns(1) to enforce that.
type RunLog struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB.
func New(db *sql.DB) *RunLog {
	return &RunLog{db: db}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// OpenRun inserts a new, open Run row.
func (l *RunLog) OpenRun(ctx context.Context, taskID string, phaseID *string, runType model.RunType, provider, modelName string) (model.Run, error) {
	run := model.Run{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		PhaseID:   phaseID,
		RunType:   runType,
		Provider:  provider,
		Model:     modelName,
		StartedAt: time.Now().UTC(),
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, task_id, phase_id, run_type, provider, model, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		run.ID, run.TaskID, nullableString(run.PhaseID), string(run.RunType), run.Provider, run.Model, run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("%w: opening run: %v", coreerr.ErrPersistence, err)
	}
	return run, nil
}

// CloseRun sets ended_at, making the Run terminal and immutable.
func (l *RunLog) CloseRun(ctx context.Context, runID string) error {
	_, err := l.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE id = ?`, time.Now().UTC().Format(timeLayout), runID)
	if err != nil {
		return fmt.Errorf("%w: closing run: %v", coreerr.ErrPersistence, err)
	}
	return nil
}

// AppendMessage appends one Message to an open run.
func (l *RunLog) AppendMessage(ctx context.Context, runID string, role model.MessageRole, content string) (model.Message, error) {
	msg := model.Message{
		ID:        uuid.NewString(),
		RunID:     runID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (id, run_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.RunID, string(msg.Role), msg.Content, msg.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: appending message: %v", coreerr.ErrPersistence, err)
	}
	return msg, nil
}

// AppendToolCall appends one ToolCall row.
func (l *RunLog) AppendToolCall(ctx context.Context, runID, name, argsJSON, resultJSON string) (model.ToolCall, error) {
	tc := model.ToolCall{
		ID:         uuid.NewString(),
		RunID:      runID,
		Name:       name,
		ArgsJSON:   argsJSON,
		ResultJSON: resultJSON,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, run_id, name, args_json, result_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.RunID, tc.Name, tc.ArgsJSON, tc.ResultJSON, tc.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return model.ToolCall{}, fmt.Errorf("%w: appending tool call: %v", coreerr.ErrPersistence, err)
	}
	return tc, nil
}

// AppendStep groups an assistant message and the ToolCall rows it spawns so
// a crash mid-step leaves either all or none of that step's rows visible
// (spec.md §4.6).
func (l *RunLog) AppendStep(ctx context.Context, runID string, assistantContent string, toolCalls []ToolCallWrite) (model.Message, []model.ToolCall, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer tx.Rollback()

	assistant := model.Message{
		ID:        uuid.NewString(),
		RunID:     runID,
		Role:      model.RoleAssistant,
		Content:   assistantContent,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, run_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		assistant.ID, assistant.RunID, string(assistant.Role), assistant.Content, assistant.CreatedAt.Format(timeLayout),
	); err != nil {
		return model.Message{}, nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}

	rows := make([]model.ToolCall, 0, len(toolCalls))
	for _, w := range toolCalls {
		tc := model.ToolCall{
			ID:         uuid.NewString(),
			RunID:      runID,
			Name:       w.Name,
			ArgsJSON:   w.ArgsJSON,
			ResultJSON: w.ResultJSON,
			CreatedAt:  time.Now().UTC(),
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_calls (id, run_id, name, args_json, result_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			tc.ID, tc.RunID, tc.Name, tc.ArgsJSON, tc.ResultJSON, tc.CreatedAt.Format(timeLayout),
		); err != nil {
			return model.Message{}, nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		toolMsg := model.Message{
			ID:        uuid.NewString(),
			RunID:     runID,
			Role:      model.RoleTool,
			Content:   w.ResultJSON,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, run_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			toolMsg.ID, toolMsg.RunID, string(toolMsg.Role), toolMsg.Content, toolMsg.CreatedAt.Format(timeLayout),
		); err != nil {
			return model.Message{}, nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		rows = append(rows, tc)
	}

	if err := tx.Commit(); err != nil {
		return model.Message{}, nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return assistant, rows, nil
}

// ToolCallWrite is one tool call's persisted shape, used by AppendStep.
type ToolCallWrite struct {
	Name       string
	ArgsJSON   string
	ResultJSON string
}

// UpsertArtifact replaces the content snapshot for (task_id, kind): the id
// may be reused, but created_at always advances (spec.md §3 invariant 4).
func (l *RunLog) UpsertArtifact(ctx context.Context, taskID string, phaseID *string, kind model.ArtifactKind, content string, pinned bool) (model.Artifact, error) {
	var existingID string
	err := l.db.QueryRowContext(ctx, `SELECT id FROM artifacts WHERE task_id = ? AND kind = ?`, taskID, string(kind)).Scan(&existingID)
	now := time.Now().UTC()
	switch {
	case err == sql.ErrNoRows:
		art := model.Artifact{ID: uuid.NewString(), TaskID: taskID, PhaseID: phaseID, Kind: kind, Content: content, CreatedAt: now, Pinned: pinned}
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO artifacts (id, task_id, phase_id, kind, content, created_at, pinned) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			art.ID, art.TaskID, nullableString(art.PhaseID), string(art.Kind), art.Content, art.CreatedAt.Format(timeLayout), boolToInt(art.Pinned),
		)
		if err != nil {
			return model.Artifact{}, fmt.Errorf("%w: inserting artifact: %v", coreerr.ErrPersistence, err)
		}
		return art, nil
	case err != nil:
		return model.Artifact{}, fmt.Errorf("%w: looking up artifact: %v", coreerr.ErrPersistence, err)
	default:
		_, err := l.db.ExecContext(ctx,
			`UPDATE artifacts SET phase_id = ?, content = ?, created_at = ?, pinned = ? WHERE id = ?`,
			nullableString(phaseID), content, now.Format(timeLayout), boolToInt(pinned), existingID,
		)
		if err != nil {
			return model.Artifact{}, fmt.Errorf("%w: updating artifact: %v", coreerr.ErrPersistence, err)
		}
		return model.Artifact{ID: existingID, TaskID: taskID, PhaseID: phaseID, Kind: kind, Content: content, CreatedAt: now, Pinned: pinned}, nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListMessages returns every Message for a run, in created_at order.
func (l *RunLog) ListMessages(ctx context.Context, runID string) ([]model.Message, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, run_id, role, content, created_at FROM messages WHERE run_id = ? ORDER BY created_at ASC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.RunID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListToolCalls returns every ToolCall for a run, in created_at order.
func (l *RunLog) ListToolCalls(ctx context.Context, runID string) ([]model.ToolCall, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, run_id, name, args_json, result_json, created_at FROM tool_calls WHERE run_id = ? ORDER BY created_at ASC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer rows.Close()

	var out []model.ToolCall
	for rows.Next() {
		var tc model.ToolCall
		var createdAt string
		if err := rows.Scan(&tc.ID, &tc.RunID, &tc.Name, &tc.ArgsJSON, &tc.ResultJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		tc.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ListArtifacts returns every Artifact for a task, most recent first.
func (l *RunLog) ListArtifacts(ctx context.Context, taskID string) ([]model.Artifact, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, task_id, phase_id, kind, content, created_at, pinned FROM artifacts WHERE task_id = ? ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var a model.Artifact
		var phaseID sql.NullString
		var createdAt string
		var pinned int
		if err := rows.Scan(&a.ID, &a.TaskID, &phaseID, &a.Kind, &a.Content, &createdAt, &pinned); err != nil {
			return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		if phaseID.Valid {
			a.PhaseID = &phaseID.String
		}
		a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		a.Pinned = pinned != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetArtifact returns the current snapshot for (task_id, kind), if any.
func (l *RunLog) GetArtifact(ctx context.Context, taskID string, kind model.ArtifactKind) (model.Artifact, bool, error) {
	row := l.db.QueryRowContext(ctx, `SELECT id, task_id, phase_id, kind, content, created_at, pinned FROM artifacts WHERE task_id = ? AND kind = ?`, taskID, string(kind))
	var a model.Artifact
	var phaseID sql.NullString
	var createdAt string
	var pinned int
	err := row.Scan(&a.ID, &a.TaskID, &phaseID, &a.Kind, &a.Content, &createdAt, &pinned)
	if err == sql.ErrNoRows {
		return model.Artifact{}, false, nil
	}
	if err != nil {
		return model.Artifact{}, false, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	if phaseID.Valid {
		a.PhaseID = &phaseID.String
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	a.Pinned = pinned != 0
	return a, true, nil
}
