package repotools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"spectrail/internal/coreerr"
)

const defaultMaxResults = 200

type grepArgs struct {
	ProjectID  string `json:"project_id"`
	Query      string `json:"query"`
	Path       string `json:"path,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type grepResult struct {
	Results []string `json:"results"`
	Tool    string   `json:"tool"`
}

// Grep implements the grep tool: prefer an external rg if present, else a
// pure in-tree substring walker. Result lines are formatted "path:line:text".
//
// Grounded on original_source/src-tauri/src/repo_tools/search.rs.
func (t *RepoTools) Grep(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args grepArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	if args.Query == "" {
		return nil, fmt.Errorf("%w: query is required", coreerr.ErrInvalidArgs)
	}
	root, err := t.repoPath(ctx, args.ProjectID)
	if err != nil {
		return nil, err
	}
	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	searchRoot := root
	if args.Path != "" {
		abs, rerr := resolveSearchPath(root, args.Path)
		if rerr != nil {
			return nil, rerr
		}
		searchRoot = abs
	}

	if hasRipgrep() {
		results, err := t.grepRipgrep(ctx, root, searchRoot, args.Query, maxResults)
		if err == nil {
			return json.Marshal(grepResult{Results: results, Tool: "ripgrep"})
		}
		// Fall through to the pure walker if rg itself failed to run.
	}
	results, err := grepFallback(root, searchRoot, args.Query, maxResults)
	if err != nil {
		return nil, err
	}
	return json.Marshal(grepResult{Results: results, Tool: "fallback"})
}

func resolveSearchPath(root, requested string) (string, error) {
	return resolveWithinRoot(root, requested)
}

func hasRipgrep() bool {
	_, err := exec.LookPath("rg")
	return err == nil
}

func (t *RepoTools) grepRipgrep(ctx context.Context, root, searchRoot, query string, maxResults int) ([]string, error) {
	runCtx, cancel := contextWithDefaultTimeout(ctx)
	defer cancel()

	argv := []string{
		"rg", "-n", "--with-filename", "--max-count", fmt.Sprint(maxResults), "--max-columns", "200",
		"-g", "!.git", "-g", "!node_modules", "-g", "!target", "-g", "!dist", "-g", "!build",
		query, searchRoot,
	}
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = root
	out, _ := cmd.Output() // rg exits 1 on "no matches"; treat any output as success

	var results []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() && len(results) < maxResults {
		line := scanner.Text()
		rel, ltext, ok := splitRgLine(line, root)
		if !ok {
			continue
		}
		results = append(results, rel+":"+ltext)
	}
	return results, nil
}

// splitRgLine turns an absolute-path:line:text ripgrep line into a
// root-relative "path:line:text" result.
func splitRgLine(line, root string) (string, string, bool) {
	first := strings.Index(line, ":")
	if first < 0 {
		return "", "", false
	}
	path := line[:first]
	rest := line[first+1:]
	second := strings.Index(rest, ":")
	if second < 0 {
		return "", "", false
	}
	lineNo := rest[:second]
	text := rest[second+1:]
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel), lineNo + ":" + text, true
}

func grepFallback(root, searchRoot, query string, maxResults int) ([]string, error) {
	var results []string
	lowerQuery := strings.ToLower(query)
	err := filepath.Walk(searchRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || len(results) >= maxResults {
			return nil
		}
		if info.IsDir() {
			if prunedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		// Route each file through PathGuard so a symlink whose target lies
		// outside the repo is skipped rather than read.
		if relPath, rerr := filepath.Rel(root, path); rerr != nil {
			return nil
		} else if _, gerr := resolveWithinRoot(root, relPath); gerr != nil {
			return nil
		}
		f, oerr := os.Open(path)
		if oerr != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() && len(results) < maxResults {
			lineNo++
			text := scanner.Text()
			if strings.Contains(strings.ToLower(text), lowerQuery) {
				if len(text) > 200 {
					text = text[:200]
				}
				rel, rerr := filepath.Rel(root, path)
				if rerr != nil {
					rel = path
				}
				results = append(results, fmt.Sprintf("%s:%d:%s", filepath.ToSlash(rel), lineNo, text))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrRepoUnavailable, err)
	}
	return results, nil
}

func contextWithDefaultTimeout(ctx context.Context) (context.Context, func()) {
	return contextTimeout(ctx, 30*time.Second)
}
