// Package store is the external Project/Task/Phase persistence spec.md §1
// treats as a collaborator outside the Core. It is implemented here, thin
// and deliberately minimal, so the Core is callable end to end without a
// separate desktop shell — no CRUD UI, no settings UI, nothing beyond the
// fields spec.md §3 names for Project and Task.
//
// Grounded on original_source/src-tauri/src/models.rs for the entity shapes
// and src/commands.rs for the column lists its CRUD handlers select.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spectrail/internal/coreerr"
	"spectrail/internal/model"
)

// Store is the external Project/Task store.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RepoPath implements repotools.ProjectResolver.
func (s *Store) RepoPath(ctx context.Context, projectID string) (string, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	return p.RepoPath, nil
}

// CreateProject inserts a new Project.
func (s *Store) CreateProject(ctx context.Context, name, repoPath string) (model.Project, error) {
	p := model.Project{ID: uuid.NewString(), Name: name, RepoPath: repoPath, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, repo_path, created_at, last_opened_at) VALUES (?, ?, ?, ?, NULL)`,
		p.ID, p.Name, p.RepoPath, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return p, nil
}

// GetProject looks up a Project by id.
func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, repo_path, created_at, last_opened_at FROM projects WHERE id = ?`, id)
	var p model.Project
	var createdAt string
	var lastOpened sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.RepoPath, &createdAt, &lastOpened); err != nil {
		if err == sql.ErrNoRows {
			return model.Project{}, fmt.Errorf("%w: project %s not found", coreerr.ErrRepoUnavailable, id)
		}
		return model.Project{}, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastOpened.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastOpened.String)
		p.LastOpenedAt = &t
	}
	return p, nil
}

// ListProjects returns every known Project.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, repo_path, created_at, last_opened_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		var p model.Project
		var createdAt string
		var lastOpened sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.RepoPath, &createdAt, &lastOpened); err != nil {
			return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if lastOpened.Valid {
			t, _ := time.Parse(time.RFC3339Nano, lastOpened.String)
			p.LastOpenedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TouchProject sets last_opened_at to now.
func (s *Store) TouchProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET last_opened_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return nil
}

// CreateTask inserts a new Task.
func (s *Store) CreateTask(ctx context.Context, projectID, title string, mode model.TaskMode) (model.Task, error) {
	t := model.Task{ID: uuid.NewString(), ProjectID: projectID, Title: title, Mode: mode, Status: model.TaskStatusDraft}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, title, mode, status) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, string(t.Mode), string(t.Status),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return t, nil
}

// GetTask looks up a Task by id.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, title, mode, status FROM tasks WHERE id = ?`, id)
	var t model.Task
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Mode, &t.Status); err != nil {
		if err == sql.ErrNoRows {
			return model.Task{}, fmt.Errorf("%w: task %s not found", coreerr.ErrRepoUnavailable, id)
		}
		return model.Task{}, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return t, nil
}

// ListTasks returns every Task for a project.
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, title, mode, status FROM tasks WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Mode, &t.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTaskStatus updates a Task's status.
func (s *Store) SetTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return nil
}
