package repotools

import (
	"context"
	"time"

	"spectrail/internal/pathguard"
)

// resolveWithinRoot is the shared PathGuard call every tool that accepts an
// optional sub-path (grep's path, future extensions) routes through.
func resolveWithinRoot(root, requested string) (string, error) {
	return pathguard.Resolve(root, requested)
}

func contextTimeout(ctx context.Context, d time.Duration) (context.Context, func()) {
	return context.WithTimeout(ctx, d)
}
