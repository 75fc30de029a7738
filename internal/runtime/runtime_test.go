package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArgs(t *testing.T) {
	args := runArgs(ContainerSpec{
		Image: "python:3.12-slim",
		Mounts: []Mount{
			{Source: "/tmp/run/src", Target: "/openfido/src", ReadOnly: true},
			{Source: "/tmp/run/input", Target: "/openfido/input"},
		},
		Env: map[string]string{
			"OPENFIDO_OUTPUT": "/openfido/output",
			"OPENFIDO_INPUT":  "/openfido/input",
		},
		WorkDir: "/openfido/src",
		Command: []string{"sh", "openfido.sh"},
	})

	assert.Equal(t, []string{
		"run", "--rm",
		"-v", "/tmp/run/src:/openfido/src:ro",
		"-v", "/tmp/run/input:/openfido/input",
		"-e", "OPENFIDO_INPUT=/openfido/input",
		"-e", "OPENFIDO_OUTPUT=/openfido/output",
		"-w", "/openfido/src",
		"python:3.12-slim",
		"sh", "openfido.sh",
	}, args)
}

func TestCloneArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"clone", "--depth", "1", "--single-branch", "--branch", "main", "--", "https://example.com/r.git", "/tmp/src"},
		cloneArgs("https://example.com/r.git", "main", "/tmp/src"),
	)
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	res, err := run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.OK())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRun_Success(t *testing.T) {
	res, err := run(context.Background(), "sh", "-c", "true")
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := run(context.Background(), "pipeworks-no-such-binary")
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := run(ctx, "sh", "-c", "sleep 5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOptionLikeArgumentsRejected(t *testing.T) {
	ctx := context.Background()

	// Бинарник не должен запускаться вовсе
	git := NewGit("/nonexistent/git", nil)
	_, err := git.Clone(ctx, "--upload-pack=touch /tmp/pwned", "main", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafeArgument)
	_, err = git.Clone(ctx, "https://example.com/r.git", "-x", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafeArgument)

	docker := NewDocker("/nonexistent/docker", nil)
	_, err = docker.Pull(ctx, "--all-tags")
	assert.ErrorIs(t, err, ErrUnsafeArgument)
	_, err = docker.Run(ctx, ContainerSpec{Image: "--privileged"})
	assert.ErrorIs(t, err, ErrUnsafeArgument)
}
