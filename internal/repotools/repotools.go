// Package repotools implements the frozen RepoTools contract: list_files,
// read_file, grep, git_status, git_diff, git_log_short, run_command. Every
// tool requires project_id, resolves repo_path through a ProjectResolver,
// and routes every filesystem access through pathguard.
//
// Grounded on original_source/src-tauri/src/repo_tools/{fs,search,git,runner}.rs
// for the exact IO shapes and defaults, and internal/app/runner.go for the
// Go-side process-spawning idiom.
package repotools

import (
	"context"
	"fmt"

	"spectrail/internal/coreerr"
	"spectrail/internal/procrunner"
)

// ProjectResolver resolves a project_id to the filesystem root PathGuard
// contains every access to. The external Project store implements this.
type ProjectResolver interface {
	RepoPath(ctx context.Context, projectID string) (string, error)
}

// RepoTools groups the seven tool implementations and their shared
// dependencies.
type RepoTools struct {
	Resolver ProjectResolver
	Runner   *procrunner.Runner
}

// New returns a RepoTools wired to resolver.
func New(resolver ProjectResolver) *RepoTools {
	return &RepoTools{Resolver: resolver, Runner: procrunner.New()}
}

func (t *RepoTools) repoPath(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("%w: project_id is required", coreerr.ErrInvalidArgs)
	}
	path, err := t.Resolver.RepoPath(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	return path, nil
}
