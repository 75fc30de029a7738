package runtime

import (
	"context"
	"log/slog"
)

// Git клонирует репозитории через git CLI.
type Git struct {
	binary string
	logger *slog.Logger
}

// NewGit создаёт Git. Пустой binary означает "git" из PATH.
func NewGit(binary string, logger *slog.Logger) *Git {
	if binary == "" {
		binary = "git"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Git{binary: binary, logger: logger}
}

// Clone делает shallow clone ветки branch в dest.
func (g *Git) Clone(ctx context.Context, repoURL, branch, dest string) (Result, error) {
	if err := positional("repository", repoURL); err != nil {
		return Result{}, err
	}
	if err := positional("branch", branch); err != nil {
		return Result{}, err
	}
	g.logger.Debug("git clone", "repository", repoURL, "branch", branch)
	return run(ctx, g.binary, cloneArgs(repoURL, branch, dest)...)
}

func cloneArgs(repoURL, branch, dest string) []string {
	return []string{
		"clone",
		"--depth", "1",
		"--single-branch",
		"--branch", branch,
		"--",
		repoURL,
		dest,
	}
}
