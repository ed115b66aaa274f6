// Package model defines the SpecTrail domain entities shared by the Core
// (RunLog, AgentLoop, WorkflowFacade) and the external Project/Task store.
package model

import "time"

// RunType enumerates the kinds of AgentLoop invocation a Run records.
type RunType string

const (
	RunTypePlan     RunType = "plan"
	RunTypeVerify   RunType = "verify"
	RunTypeHandoff  RunType = "handoff"
	RunTypeReview   RunType = "review"
	RunTypePhases   RunType = "phases"
	RunTypeTest     RunType = "test"
)

// MessageRole enumerates the roles a Message may carry, mirroring the
// chat-completions protocol.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ArtifactKind enumerates the Artifact.kind values the Core produces.
type ArtifactKind string

const (
	ArtifactPlanMD             ArtifactKind = "plan_md"
	ArtifactPhaseList          ArtifactKind = "phase_list"
	ArtifactVerificationReport ArtifactKind = "verification_report"
	ArtifactHandoffPrompt      ArtifactKind = "handoff_prompt"
	ArtifactNotes              ArtifactKind = "notes"
)

// TaskMode enumerates the Task.mode values the external store persists.
type TaskMode string

const (
	TaskModePlan   TaskMode = "plan"
	TaskModePhases TaskMode = "phases"
	TaskModeReview TaskMode = "review"
)

// TaskStatus enumerates the Task.status values the external store persists.
type TaskStatus string

const (
	TaskStatusDraft    TaskStatus = "draft"
	TaskStatusActive   TaskStatus = "active"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusArchived TaskStatus = "archived"
)

// Project is an external entity: it supplies the filesystem root PathGuard
// contains every tool access to.
type Project struct {
	ID           string
	Name         string
	RepoPath     string
	CreatedAt    time.Time
	LastOpenedAt *time.Time
}

// Task is an external entity identifying the unit of work a Run is for.
type Task struct {
	ID        string
	ProjectID string
	Title     string
	Mode      TaskMode
	Status    TaskStatus
}

// Run is one invocation of AgentLoop. ended_at is nil while the run is open;
// once set, the Run is terminal and immutable.
type Run struct {
	ID        string
	TaskID    string
	PhaseID   *string
	RunType   RunType
	Provider  string
	Model     string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Open reports whether the Run has not yet been closed.
func (r Run) Open() bool { return r.EndedAt == nil }

// Message is one append-only entry in a Run's transcript.
type Message struct {
	ID        string
	RunID     string
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

// ToolCall is one executed tool invocation, logged after execution with
// either a result payload or an {"error": "..."} envelope in ResultJSON.
type ToolCall struct {
	ID         string
	RunID      string
	Name       string
	ArgsJSON   string
	ResultJSON string
	CreatedAt  time.Time
}

// Artifact is a persisted Markdown output. Saving a new one for the same
// (TaskID, Kind) logically replaces the previous snapshot: the id may be
// reused, but CreatedAt advances.
type Artifact struct {
	ID        string
	TaskID    string
	PhaseID   *string
	Kind      ArtifactKind
	Content   string
	CreatedAt time.Time
	Pinned    bool
}

// Setting is one row of the flat key/value configuration store.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
