package repotools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"spectrail/internal/coreerr"
)

// CommandKind enumerates the run_command.kind values.
type CommandKind string

const (
	KindTests CommandKind = "tests"
	KindLint  CommandKind = "lint"
	KindBuild CommandKind = "build"
)

// detectRunner inspects lockfiles to pick a package-manager/toolchain
// runner, per spec.md §4.4. Checked in the same precedence as
// original_source/src-tauri/src/repo_tools/runner.rs's detect_runner.
func detectRunner(repoRoot string) (string, error) {
	checks := []struct {
		file   string
		runner string
	}{
		{"pnpm-lock.yaml", "pnpm"},
		{"yarn.lock", "yarn"},
		{"package-lock.json", "npm"},
		{"Cargo.toml", "cargo"},
	}
	for _, c := range checks {
		if fileExists(filepath.Join(repoRoot, c.file)) {
			return c.runner, nil
		}
	}
	if fileExists(filepath.Join(repoRoot, "pyproject.toml")) || fileExists(filepath.Join(repoRoot, "requirements.txt")) {
		return "pytest", nil
	}
	return "", fmt.Errorf("%w: could not detect project type", coreerr.ErrDisallowedCommand)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildArgv is the authoritative (kind, runner) allow-list matrix, per
// spec.md §9's "Allow-list drift" note, taken verbatim from
// original_source/src-tauri/src/repo_tools/runner.rs's build_command. Any
// pair not in this table fails DisallowedCommand before anything spawns.
func buildArgv(runner string, kind CommandKind) ([]string, error) {
	switch {
	case runner == "pnpm" && kind == KindTests:
		return []string{"pnpm", "test"}, nil
	case runner == "pnpm" && kind == KindLint:
		return []string{"pnpm", "lint"}, nil
	case runner == "pnpm" && kind == KindBuild:
		return []string{"pnpm", "build"}, nil
	case runner == "npm" && kind == KindTests:
		return []string{"npm", "test"}, nil
	case runner == "npm" && kind == KindLint:
		return []string{"npm", "run", "lint"}, nil
	case runner == "npm" && kind == KindBuild:
		return []string{"npm", "run", "build"}, nil
	case runner == "yarn" && kind == KindTests:
		return []string{"yarn", "test"}, nil
	case runner == "yarn" && kind == KindLint:
		return []string{"yarn", "lint"}, nil
	case runner == "yarn" && kind == KindBuild:
		return []string{"yarn", "build"}, nil
	case runner == "cargo" && kind == KindTests:
		return []string{"cargo", "test"}, nil
	case runner == "cargo" && kind == KindLint:
		return []string{"cargo", "clippy", "--", "-D", "warnings"}, nil
	case runner == "cargo" && kind == KindBuild:
		return []string{"cargo", "build"}, nil
	case (runner == "python" || runner == "pytest") && kind == KindTests:
		return []string{"pytest"}, nil
	case runner == "python" && kind == KindLint:
		return []string{"ruff", "check", "."}, nil
	case runner == "python" && kind == KindBuild:
		return nil, fmt.Errorf("%w: python has no build step", coreerr.ErrDisallowedCommand)
	default:
		return nil, fmt.Errorf("%w: unsupported runner %q for kind %q", coreerr.ErrDisallowedCommand, runner, kind)
	}
}

type runCommandArgs struct {
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"`
	Runner    string `json:"runner,omitempty"`
}

type runCommandResult struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
}

// RunCommand implements run_command: auto-detects (or accepts an explicit)
// runner, looks up the fixed argv for (kind, runner), and spawns it with the
// package default timeout. Anything outside the allow-list fails
// DisallowedCommand before spawning.
func (t *RepoTools) RunCommand(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args runCommandArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	kind := CommandKind(args.Kind)
	if kind != KindTests && kind != KindLint && kind != KindBuild {
		return nil, fmt.Errorf("%w: kind must be one of tests, lint, build", coreerr.ErrInvalidArgs)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}

	runner := args.Runner
	if runner == "" {
		runner, err = detectRunner(root)
		if err != nil {
			return nil, err
		}
	}
	argv, err := buildArgv(runner, kind)
	if err != nil {
		return nil, err
	}

	res, err := t.Runner.Run(ctx, root, argv, 0) // 0 => package default (120s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	return json.Marshal(runCommandResult{
		Success:  res.Success,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		TimedOut: res.TimedOut,
	})
}
