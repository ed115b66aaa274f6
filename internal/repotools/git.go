package repotools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"spectrail/internal/coreerr"
	"spectrail/internal/outputbounder"
)

const (
	maxDiffChars = 100000 // spec.md §4.4: clipped to 100 KiB
	gitTimeout   = 10 * time.Second
)

type projectOnlyArgs struct {
	ProjectID string `json:"project_id"`
}

type gitStatusResult struct {
	Status string `json:"status"`
}

// GitStatus implements git_status: `git status --porcelain=v1 -b`.
func (t *RepoTools) GitStatus(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args projectOnlyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	res, err := t.Runner.Run(ctx, root, []string{"git", "status", "--porcelain=v1", "-b"}, gitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	return json.Marshal(gitStatusResult{Status: res.Stdout})
}

type gitDiffArgs struct {
	ProjectID string `json:"project_id"`
	Staged    bool   `json:"staged,omitempty"`
}

type gitDiffResult struct {
	Diff       string `json:"diff"`
	Truncated  bool   `json:"truncated"`
	TotalBytes int    `json:"total_bytes"`
}

// GitDiff implements git_diff: `git diff` or `git diff --staged`, clipped to
// 100 KiB.
func (t *RepoTools) GitDiff(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args gitDiffArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	argv := []string{"git", "diff"}
	if args.Staged {
		argv = append(argv, "--staged")
	}
	res, err := t.Runner.Run(ctx, root, argv, gitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	clipped, truncated, total := outputbounder.Bound(res.Stdout, maxDiffChars)
	return json.Marshal(gitDiffResult{Diff: clipped, Truncated: truncated, TotalBytes: total})
}

type gitLogArgs struct {
	ProjectID  string `json:"project_id"`
	MaxCommits int    `json:"max_commits,omitempty"`
}

type gitLogResult struct {
	Log []string `json:"log"`
}

// GitLogShort implements git_log_short: `git log --oneline -n <N>`.
func (t *RepoTools) GitLogShort(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args gitLogArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	maxCommits := args.MaxCommits
	if maxCommits <= 0 {
		maxCommits = 10
	}
	res, err := t.Runner.Run(ctx, root, []string{"git", "log", "--oneline", "-n", fmt.Sprint(maxCommits)}, gitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	var lines []string
	for _, l := range strings.Split(res.Stdout, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return json.Marshal(gitLogResult{Log: lines})
}
