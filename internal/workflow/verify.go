package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"spectrail/internal/agentloop"
	"spectrail/internal/model"
	"spectrail/internal/obslog"
	"spectrail/internal/promptbuilder"
	"spectrail/internal/toolregistry"
)

// VerifyOptions selects which checks verify_task runs before asking the
// model to reason over them, per spec.md §4.10 ("the facade additionally
// pre-runs the requested checks via run_command and seeds their outputs
// into the initial user message"). verify_task still drives AgentLoop like
// generate_plan does, but hands it an empty ToolRegistry: with nothing to
// call, the model's first turn always carries final content and the loop
// exits after one round trip (grounded on
// original_source/src-tauri/src/workflows/verify.rs, which never hands the
// model a tools array at all).
type VerifyOptions struct {
	Staged   bool
	RunTests bool
	RunLint  bool
	RunBuild bool
	// MaxToolCalls bounds how many of the pre-fetch calls below (git_status,
	// git_diff, plus one per requested check) actually run; defaults to 8.
	// git_status and git_diff always count against the budget first.
	MaxToolCalls int
}

// VerifyResult is verify_task's return shape (spec.md §4.10).
type VerifyResult struct {
	RunID      string
	Report     string
	RanChecks  RanChecks
	Truncated  bool
}

// RanChecks records which of the requested checks actually executed before
// the budget ran out.
type RanChecks struct {
	Tests bool
	Lint  bool
	Build bool
}

const defaultMaxToolCalls = 8

// VerifyTask implements verify_task(project_id, task_id, options) per
// spec.md §4.10: resolve project+task, load settings, open a verify Run,
// pre-fetch git status/diff and any requested checks (budget-gated),
// best-effort-load the prior plan_md artifact, then make a single
// no-tools LLM call and upsert the verification_report artifact.
func (f *Facade) VerifyTask(ctx context.Context, projectID, taskID string, opts VerifyOptions) (VerifyResult, error) {
	task, _, err := f.resolveTaskAndProject(ctx, projectID, taskID)
	if err != nil {
		return VerifyResult{}, err
	}

	snap, err := f.Settings.LoadSnapshot(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	budget := opts.MaxToolCalls
	if budget <= 0 {
		budget = defaultMaxToolCalls
	}

	run, err := f.Log.OpenRun(ctx, taskID, nil, model.RunTypeVerify, snap.ProviderName, snap.Model)
	if err != nil {
		return VerifyResult{}, err
	}
	log := obslog.ForRun(obslog.Default, run.ID, taskID)
	log.Info().Str("project_id", projectID).Int("max_tool_calls", budget).Msg("verify_task started")

	gitStatus, gitDiff, ranChecks, budget, err := f.gatherVerifyContext(ctx, projectID, opts, budget)
	if err != nil {
		log.Error().Err(err).Msg("verify_task aborted during pre-fetch")
		f.Log.CloseRun(ctx, run.ID)
		return VerifyResult{}, err
	}

	priorPlan := ""
	if art, ok, err := f.Log.GetArtifact(ctx, taskID, model.ArtifactPlanMD); err == nil && ok {
		priorPlan = art.Content
	}
	// Absence of a prior plan is tolerated (spec.md §4.10: "best effort");
	// a lookup error is not fatal to verify either — it degrades to "no plan".

	vr := promptbuilder.BuildVerifyMessages(promptbuilder.VerifyInputs{
		Task:       task,
		PriorPlan:  priorPlan,
		GitStatus:  gitStatus,
		GitDiff:    gitDiff,
		Staged:     opts.Staged,
		TestOutput: ranChecks.testOutput,
		LintOutput: ranChecks.lintOutput,
		BuildOutput: ranChecks.buildOutput,
	})

	if _, err := f.Log.AppendMessage(ctx, run.ID, model.RoleSystem, vr.SystemPrompt); err != nil {
		f.Log.CloseRun(ctx, run.ID)
		return VerifyResult{}, err
	}
	if _, err := f.Log.AppendMessage(ctx, run.ID, model.RoleUser, vr.UserMessage); err != nil {
		f.Log.CloseRun(ctx, run.ID)
		return VerifyResult{}, err
	}

	loop := agentloop.New(providerAdapter{f.newProvider(snap)}, noToolRegistry{}, persistenceAdapter{f.Log}, projectID, log)
	result, err := loop.Run(ctx, run.ID, []agentloop.ChatMessage{
		{Role: "system", Content: vr.SystemPrompt},
		{Role: "user", Content: vr.UserMessage},
	})
	if err != nil {
		log.Error().Err(err).Msg("verify_task aborted")
		f.Log.CloseRun(ctx, run.ID)
		return VerifyResult{}, err
	}

	report := result.FinalContent
	if _, err := f.Log.UpsertArtifact(ctx, taskID, nil, model.ArtifactVerificationReport, report, false); err != nil {
		f.Log.CloseRun(ctx, run.ID)
		return VerifyResult{}, err
	}
	if err := f.Log.CloseRun(ctx, run.ID); err != nil {
		return VerifyResult{}, err
	}
	log.Info().Bool("truncated", vr.Truncated || result.Truncated).
		Bool("ran_tests", ranChecks.ran.Tests).Bool("ran_lint", ranChecks.ran.Lint).Bool("ran_build", ranChecks.ran.Build).
		Msg("verify_task finished")

	return VerifyResult{
		RunID:     run.ID,
		Report:    report,
		Truncated: vr.Truncated || result.Truncated,
		RanChecks: RanChecks{Tests: ranChecks.ran.Tests, Lint: ranChecks.ran.Lint, Build: ranChecks.ran.Build},
	}, nil
}

// noToolRegistry is the empty ToolRegistry handed to AgentLoop for
// verify_task: no schemas means the request's "tools" field is omitted
// entirely (chatprovider's chatRequest.Tools has json:"tools,omitempty"), so the
// model is never offered a tool to call and Dispatch is never reached.
type noToolRegistry struct{}

func (noToolRegistry) Schemas() []toolregistry.Schema { return nil }

func (noToolRegistry) Dispatch(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("verify_task does not offer any tools to call, got %q", name)
}

// checkOutputs bundles the pre-fetched check output alongside which checks
// actually ran (vs. were skipped for lack of budget).
type checkOutputs struct {
	testOutput, lintOutput, buildOutput string
	ran                                 RanChecks
}

// gatherVerifyContext calls git_status, then git_diff, then run_command for
// each requested check, each only while budget remains, per SPEC_FULL.md's
// max_tool_calls default of 8.
func (f *Facade) gatherVerifyContext(ctx context.Context, projectID string, opts VerifyOptions, budget int) (status, diff string, out checkOutputs, remaining int, err error) {
	remaining = budget

	statusArgs, _ := json.Marshal(map[string]string{"project_id": projectID})
	if remaining <= 0 {
		return "", "", out, remaining, nil
	}
	statusRaw, err := f.Tools.GitStatus(ctx, statusArgs)
	if err != nil {
		return "", "", out, remaining, err
	}
	remaining--
	var statusResult struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(statusRaw, &statusResult); err != nil {
		return "", "", out, remaining, fmt.Errorf("decoding git_status result: %w", err)
	}
	status = statusResult.Status

	if remaining <= 0 {
		return status, "", out, remaining, nil
	}
	diffArgs, _ := json.Marshal(map[string]any{"project_id": projectID, "staged": opts.Staged})
	diffRaw, err := f.Tools.GitDiff(ctx, diffArgs)
	if err != nil {
		return status, "", out, remaining, err
	}
	remaining--
	var diffResult struct {
		Diff string `json:"diff"`
	}
	if err := json.Unmarshal(diffRaw, &diffResult); err != nil {
		return status, "", out, remaining, fmt.Errorf("decoding git_diff result: %w", err)
	}
	diff = diffResult.Diff

	checks := []struct {
		want bool
		kind string
		set  func(string)
		flag *bool
	}{
		{opts.RunTests, "tests", func(s string) { out.testOutput = s }, &out.ran.Tests},
		{opts.RunLint, "lint", func(s string) { out.lintOutput = s }, &out.ran.Lint},
		{opts.RunBuild, "build", func(s string) { out.buildOutput = s }, &out.ran.Build},
	}
	for _, c := range checks {
		if !c.want || remaining <= 0 {
			continue
		}
		runArgs, _ := json.Marshal(map[string]string{"project_id": projectID, "kind": c.kind})
		runRaw, err := f.Tools.RunCommand(ctx, runArgs)
		remaining--
		if err != nil {
			// An individual check failing to run (disallowed command, repo
			// unavailable) does not abort verify — it is simply not reported.
			continue
		}
		var runResult struct {
			Stdout string `json:"stdout"`
			Stderr string `json:"stderr"`
		}
		if json.Unmarshal(runRaw, &runResult) == nil {
			c.set(runResult.Stdout + runResult.Stderr)
			*c.flag = true
		}
	}

	return status, diff, out, remaining, nil
}
