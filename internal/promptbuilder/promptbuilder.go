// Package promptbuilder produces the opening system+user message pair for
// the plan and verify modes, per spec.md §4.8, sharpened by the
// SUPPLEMENTED FEATURES in SPEC_FULL.md (plan-feeds-verify, truncation
// boundaries).
//
// Grounded on original_source/src-tauri/src/workflows/{plan,verify}.rs for
// the exact template sections and truncation boundaries, and
// internal/app/plan_mode.go for the teacher's prompt-construction style
// (a system prompt built as one long literal plus a helper that gathers
// project context) — the template sections themselves follow spec.md,
// not the teacher's own plan-mode template, which differs.
package promptbuilder

import (
	"fmt"
	"strings"

	"spectrail/internal/model"
	"spectrail/internal/outputbounder"
)

const (
	planPriorPlanCap = 5000
	verifyDiffCap    = 30000
	verifyTestCap    = 10000
	verifyLintCap    = 5000
	verifyBuildCap   = 5000
)

// planSystemPrompt is the fixed seven-section template spec.md §4.8 names.
const planSystemPrompt = `You are an engineering assistant exploring a source repository to produce an implementation plan. Use the available tools (list_files, read_file, grep, git_status, git_diff, git_log_short, run_command) to understand the codebase before writing anything. Do not guess at file contents you have not read.

When you are done exploring, respond with a single Markdown document following exactly this template:

# Implementation Plan: <short title>

## 1. Summary
## 2. Goals & Non-Goals
## 3. Repo Context Assumptions
## 4. File-by-File Changes
## 5. Step-by-Step Checklist
## 6. Risks + Mitigations
## 7. Validation Steps

Validation Steps should name concrete checks (tests, lint, build) the verify workflow can run via run_command.`

// verifySystemPrompt is the fixed four-section template spec.md §4.8 names.
const verifySystemPrompt = `You are an engineering assistant verifying that a repository's current changes match its implementation plan (if one exists). You have been given the current git status, diff, and any requested check output already — do not call tools; reason over what is provided.

Respond with a single Markdown document following exactly this template:

# Verification Report

## 1. Compliance
## 2. Risk
## 3. Quality
## 4. Recommendations`

// BuildPlanMessages returns the system+user seed pair for generate_plan.
// The user message interpolates task title and repo path, per spec.md §4.8.
func BuildPlanMessages(task model.Task, project model.Project) (system, user string) {
	user = fmt.Sprintf("Task: %s\n\nRepository: %s\n\nPlease explore this codebase and create a detailed implementation plan following the required template.", task.Title, project.RepoPath)
	return planSystemPrompt, user
}

// TruncationNote is appended to a plan artifact when AgentLoop hit the
// iteration or context cap, verbatim from
// original_source/src-tauri/src/workflows/plan.rs.
const TruncationNote = "\n\n---\n\n**Note**: This plan was truncated because the agent reached the maximum number of tool-call iterations or the context limit. Consider asking for a more focused plan."

// VerifyInputs bundles everything the verify user message interpolates.
type VerifyInputs struct {
	Task       model.Task
	PriorPlan  string // empty if none
	GitStatus  string
	GitDiff    string
	Staged     bool
	TestOutput string // empty if run_tests was false
	LintOutput string // empty if run_lint was false
	BuildOutput string // empty if run_build was false
}

// VerifyResult carries whether any input was clipped, so the caller can
// fold it into the final truncated flag.
type VerifyResult struct {
	SystemPrompt string
	UserMessage  string
	Truncated    bool
}

// BuildVerifyMessages returns the system+user seed pair for verify_task,
// interpolating the prior plan (if any, capped at 5,000 chars) and the
// pre-fetched git/check output (capped per SPEC_FULL.md's SUPPLEMENTED
// FEATURES boundaries), each clip setting Truncated.
func BuildVerifyMessages(in VerifyInputs) VerifyResult {
	var truncated bool
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n\n", in.Task.Title)

	if in.PriorPlan == "" {
		b.WriteString("## Prior Plan\n\n*No implementation plan provided for this task.*\n\n")
	} else {
		plan, wasTrunc, _ := outputbounder.Bound(in.PriorPlan, planPriorPlanCap)
		truncated = truncated || wasTrunc
		fmt.Fprintf(&b, "## Prior Plan\n\n%s\n\n", plan)
	}

	fmt.Fprintf(&b, "## Git Status\n\n```\n%s\n```\n\n", in.GitStatus)

	diff, wasTrunc, _ := outputbounder.Bound(in.GitDiff, verifyDiffCap)
	truncated = truncated || wasTrunc
	diffLabel := "Unstaged Changes"
	if in.Staged {
		diffLabel = "Staged Changes"
	}
	fmt.Fprintf(&b, "## Git Diff (%s)\n\n```diff\n%s\n```\n\n", diffLabel, diff)

	if in.TestOutput != "" {
		out, wasTrunc, _ := outputbounder.Bound(in.TestOutput, verifyTestCap)
		truncated = truncated || wasTrunc
		fmt.Fprintf(&b, "## Test Output\n\n```\n%s\n```\n\n", out)
	}
	if in.LintOutput != "" {
		out, wasTrunc, _ := outputbounder.Bound(in.LintOutput, verifyLintCap)
		truncated = truncated || wasTrunc
		fmt.Fprintf(&b, "## Lint Output\n\n```\n%s\n```\n\n", out)
	}
	if in.BuildOutput != "" {
		out, wasTrunc, _ := outputbounder.Bound(in.BuildOutput, verifyBuildCap)
		truncated = truncated || wasTrunc
		fmt.Fprintf(&b, "## Build Output\n\n```\n%s\n```\n\n", out)
	}

	return VerifyResult{SystemPrompt: verifySystemPrompt, UserMessage: b.String(), Truncated: truncated}
}
