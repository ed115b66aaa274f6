// Package pathguard canonicalises and contains paths within a repo root,
// the sole gate every filesystem access made by RepoTools passes through.
//
// Grounded on original_source/src-tauri/src/repo_tools/safety.rs's
// sanitize_path: reject absolute requested paths that do not already lie
// under the root, pop path components on
// ".." rather than string-matching it (so "a/../.." inside a deep enough
// tree is a legal no-op, not an escape), then canonicalise and verify the
// result still lies under the canonical repo root. A requested path that
// does not exist yet is resolved by canonicalising the root alone and doing
// a prefix comparison against the joined (uncanonicalised) path.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spectrail/internal/coreerr"
)

// Resolve returns the contained absolute path for requested, relative to
// repoRoot, or coreerr.ErrPathEscape if it would leave the root — including
// via a symlink whose canonical target escapes. If repoRoot itself cannot be
// canonicalised, every call fails with coreerr.ErrRepoUnavailable.
func Resolve(repoRoot, requested string) (string, error) {
	canonRoot, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		return "", fmt.Errorf("%w: repo root %q: %v", coreerr.ErrRepoUnavailable, repoRoot, err)
	}
	canonRoot, err = filepath.Abs(canonRoot)
	if err != nil {
		return "", fmt.Errorf("%w: repo root %q: %v", coreerr.ErrRepoUnavailable, repoRoot, err)
	}

	if filepath.IsAbs(requested) {
		// An absolute requested path is only legal if it already lies
		// under the root; reject otherwise rather than silently
		// reinterpreting it as root-relative.
		abs := filepath.Clean(requested)
		if !withinRoot(canonRoot, abs) {
			return "", fmt.Errorf("%w: absolute path %q escapes repo root", coreerr.ErrPathEscape, requested)
		}
		return finalize(canonRoot, abs)
	}

	joined, err := joinContained(canonRoot, requested)
	if err != nil {
		return "", err
	}
	return finalize(canonRoot, joined)
}

// joinContained splits requested into components and builds a clean path by
// popping the last accumulated component on "..", erroring if there is
// nothing left to pop (that is an escape attempt).
func joinContained(canonRoot, requested string) (string, error) {
	norm := strings.ReplaceAll(requested, "\\", "/")
	parts := strings.Split(norm, "/")
	stack := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", fmt.Errorf("%w: %q traverses above repo root", coreerr.ErrPathEscape, requested)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, p)
		}
	}
	return filepath.Join(canonRoot, filepath.Join(stack...)), nil
}

// finalize canonicalises the joined path when it exists (catching symlink
// escapes), otherwise falls back to a string-prefix check against the
// uncanonicalised path, since there is nothing on disk yet to resolve.
func finalize(canonRoot, joined string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(joined); err == nil {
		resolved, aerr := filepath.Abs(resolved)
		if aerr != nil {
			return "", fmt.Errorf("%w: %v", coreerr.ErrPathEscape, aerr)
		}
		if !withinRoot(canonRoot, resolved) {
			return "", fmt.Errorf("%w: %q resolves outside repo root", coreerr.ErrPathEscape, joined)
		}
		return resolved, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %v", coreerr.ErrPathEscape, err)
	}

	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", coreerr.ErrPathEscape, err)
	}
	if !withinRoot(canonRoot, abs) {
		return "", fmt.Errorf("%w: %q resolves outside repo root", coreerr.ErrPathEscape, joined)
	}
	return abs, nil
}

func withinRoot(canonRoot, candidate string) bool {
	rel, err := filepath.Rel(canonRoot, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
