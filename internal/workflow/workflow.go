// Package workflow implements the WorkflowFacade: the two public entry
// points generate_plan and verify_task, orchestrating every other Core
// component per spec.md §4.10.
//
// Grounded on internal/app/app.go's Application struct (the teacher
// composes Config + Logger + Client + Runner + Jobs + Prompter + Memory
// into one facade type the CLI drives — the same composition shape this
// package's Facade follows) and
// original_source/src-tauri/src/workflows/{plan,verify}.rs for the exact
// orchestration order (resolve task/project → load settings → open run →
// seed messages → drive AgentLoop → upsert artifact).
package workflow

import (
	"context"
	"fmt"
	"strings"

	"spectrail/internal/agentloop"
	"spectrail/internal/chatprovider"
	"spectrail/internal/coreerr"
	"spectrail/internal/model"
	"spectrail/internal/obslog"
	"spectrail/internal/promptbuilder"
	"spectrail/internal/repotools"
	"spectrail/internal/runlog"
	"spectrail/internal/settings"
	"spectrail/internal/store"
	"spectrail/internal/toolregistry"
)

// Facade composes every Core component into the two entry points spec.md
// §4.10 names.
type Facade struct {
	Settings *settings.Store
	Store    *store.Store
	Log      *runlog.RunLog
	Tools    *repotools.RepoTools
	Registry *toolregistry.Registry
}

// New wires a Facade from its dependencies. The stores are expected to wrap
// an already-migrated database (dbstore.Open does this).
func New(settingsStore *settings.Store, projectStore *store.Store, log *runlog.RunLog) *Facade {
	tools := repotools.New(projectStore)
	return &Facade{
		Settings: settingsStore,
		Store:    projectStore,
		Log:      log,
		Tools:    tools,
		Registry: toolregistry.New(tools),
	}
}

// PlanResult is generate_plan's return shape (spec.md §4.10).
type PlanResult struct {
	RunID          string
	PlanMD         string
	ToolCallsCount int
	Truncated      bool
}

// resolveTaskAndProject validates the (projectID, taskID) pair and loads
// both entities, grounded on
// original_source/src-tauri/src/workflows/plan.rs's get_task_and_project.
func (f *Facade) resolveTaskAndProject(ctx context.Context, projectID, taskID string) (model.Task, model.Project, error) {
	task, err := f.Store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, model.Project{}, err
	}
	if task.ProjectID != projectID {
		return model.Task{}, model.Project{}, fmt.Errorf("%w: task %s does not belong to project %s", coreerr.ErrInvalidArgs, taskID, projectID)
	}
	project, err := f.Store.GetProject(ctx, projectID)
	if err != nil {
		return model.Task{}, model.Project{}, err
	}
	return task, project, nil
}

func (f *Facade) newProvider(snap settings.Snapshot) *chatprovider.Client {
	return chatprovider.New(chatprovider.Config{
		BaseURL:      snap.BaseURL,
		Model:        snap.Model,
		APIKey:       snap.APIKey,
		Temperature:  snap.Temperature,
		MaxTokens:    snap.MaxTokens,
		ExtraHeaders: snap.ExtraHeaders,
	})
}

// GeneratePlan implements generate_plan(project_id, task_id) per spec.md
// §4.10: resolve project+task, load settings, open a plan Run, seed the
// plan prompt, drive AgentLoop, upsert the plan_md artifact.
func (f *Facade) GeneratePlan(ctx context.Context, projectID, taskID string) (PlanResult, error) {
	task, project, err := f.resolveTaskAndProject(ctx, projectID, taskID)
	if err != nil {
		return PlanResult{}, err
	}

	// Settings are loaded — and the credential resolved — before a Run is
	// ever opened: a missing api_key must not leave a half-open Run behind.
	snap, err := f.Settings.LoadSnapshot(ctx)
	if err != nil {
		return PlanResult{}, err
	}

	run, err := f.Log.OpenRun(ctx, taskID, nil, model.RunTypePlan, snap.ProviderName, snap.Model)
	if err != nil {
		return PlanResult{}, err
	}
	log := obslog.ForRun(obslog.Default, run.ID, taskID)
	log.Info().Str("project_id", projectID).Msg("generate_plan started")

	system, user := promptbuilder.BuildPlanMessages(task, project)
	if _, err := f.Log.AppendMessage(ctx, run.ID, model.RoleSystem, system); err != nil {
		f.Log.CloseRun(ctx, run.ID)
		return PlanResult{}, err
	}
	if _, err := f.Log.AppendMessage(ctx, run.ID, model.RoleUser, user); err != nil {
		f.Log.CloseRun(ctx, run.ID)
		return PlanResult{}, err
	}

	loop := agentloop.New(providerAdapter{f.newProvider(snap)}, f.Registry, persistenceAdapter{f.Log}, projectID, log)
	result, err := loop.Run(ctx, run.ID, []agentloop.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		// ABORT: close the run, surface the error; partial history stays visible.
		log.Error().Err(err).Msg("generate_plan aborted")
		f.Log.CloseRun(ctx, run.ID)
		return PlanResult{}, err
	}

	planMD := result.FinalContent
	if result.Truncated && planMD != "" {
		planMD += promptbuilder.TruncationNote
	} else if result.Truncated {
		planMD = strings.TrimSpace(promptbuilder.TruncationNote)
	}

	if _, err := f.Log.UpsertArtifact(ctx, taskID, nil, model.ArtifactPlanMD, planMD, false); err != nil {
		f.Log.CloseRun(ctx, run.ID)
		return PlanResult{}, err
	}
	if err := f.Log.CloseRun(ctx, run.ID); err != nil {
		return PlanResult{}, err
	}
	log.Info().Bool("truncated", result.Truncated).Msg("generate_plan finished")

	return PlanResult{RunID: run.ID, PlanMD: planMD, ToolCallsCount: result.ToolCallsCount, Truncated: result.Truncated}, nil
}
