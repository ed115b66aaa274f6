package repotools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"spectrail/internal/coreerr"
	"spectrail/internal/outputbounder"
	"spectrail/internal/pathguard"
)

const (
	defaultMaxFiles = 2000
	defaultMaxBytes = 200000
	binarySniffLen  = 8192
)

// prunedDirs mirrors original_source/src-tauri/src/repo_tools/fs.rs's
// exclusion set, extended with the junk directories search.rs also skips.
var prunedDirs = map[string]bool{
	".git":            true,
	"node_modules":    true,
	"target":          true,
	"dist":            true,
	"build":           true,
	".next":           true,
	"__pycache__":     true,
	".venv":           true,
	"venv":            true,
	".pytest_cache":   true,
	".mypy_cache":     true,
}

type listFilesArgs struct {
	ProjectID string   `json:"project_id"`
	Globs     []string `json:"globs,omitempty"`
	MaxFiles  int      `json:"max_files,omitempty"`
}

type listFilesResult struct {
	Files     []string `json:"files"`
	Truncated bool     `json:"truncated"`
}

// ListFiles implements the list_files tool: a pruned, sorted traversal from
// the repo root returning paths relative to it.
func (t *RepoTools) ListFiles(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args listFilesArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	maxFiles := args.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	var files []string
	truncated := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole walk
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if prunedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxFiles {
			truncated = true
			return filepath.SkipAll
		}
		relSlash := filepath.ToSlash(rel)
		if len(args.Globs) > 0 && !matchesAnyGlob(args.Globs, relSlash) {
			return nil
		}
		files = append(files, relSlash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	sort.Strings(files)
	if len(files) > maxFiles {
		files = files[:maxFiles]
		truncated = true
	}
	return json.Marshal(listFilesResult{Files: files, Truncated: truncated})
}

func matchesAnyGlob(globs []string, relPath string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, relPath); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(relPath)); ok {
			return true
		}
	}
	return false
}

type readFileArgs struct {
	ProjectID string `json:"project_id"`
	Path      string `json:"path"`
	MaxBytes  int    `json:"max_bytes,omitempty"`
}

type readFileResult struct {
	Content   string `json:"content,omitempty"`
	Binary    bool   `json:"binary,omitempty"`
	Truncated bool   `json:"truncated"`
	TotalSize int    `json:"total_size"`
}

// ReadFile implements the read_file tool. Binary detection is a NUL-byte
// heuristic over the first 8 KiB; binary files return {binary:true,
// total_size} without content.
func (t *RepoTools) ReadFile(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	if args.Path == "" {
		return nil, fmt.Errorf("%w: path is required", coreerr.ErrInvalidArgs)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	maxBytes := args.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	abs, err := pathguard.Resolve(root, args.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}

	sniffLen := len(data)
	if sniffLen > binarySniffLen {
		sniffLen = binarySniffLen
	}
	if looksBinary(data[:sniffLen]) {
		return json.Marshal(readFileResult{Binary: true, TotalSize: len(data)})
	}

	clipped, truncated, total := outputbounder.Bound(string(data), maxBytes)
	return json.Marshal(readFileResult{
		Content:   clipped,
		Truncated: truncated,
		TotalSize: total,
	})
}

func looksBinary(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}
