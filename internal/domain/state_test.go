package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition_Table(t *testing.T) {
	allowed := map[RunState]map[RunState]bool{
		RunStateQueued:     {RunStateNotStarted: true, RunStateCancelled: true},
		RunStateNotStarted: {RunStateRunning: true, RunStateCancelled: true},
		RunStateRunning:    {RunStateFailed: true, RunStateCompleted: true, RunStateCancelled: true},
	}

	// Перебираем все пары, включая переходы в себя
	for _, from := range AllRunStates {
		for _, to := range AllRunStates {
			want := allowed[from][to]
			assert.Equal(t, want, IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsValidTransition_TerminalRejectsEverything(t *testing.T) {
	for _, from := range AllRunStates {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range AllRunStates {
			assert.False(t, IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsValidTransition_UnknownStates(t *testing.T) {
	assert.False(t, IsValidTransition("", RunStateQueued))
	assert.False(t, IsValidTransition(RunStateQueued, "DONE"))
}

func TestRunState_IsTerminal(t *testing.T) {
	terminal := map[RunState]bool{
		RunStateFailed:    true,
		RunStateCompleted: true,
		RunStateCancelled: true,
	}
	for _, s := range AllRunStates {
		assert.Equal(t, terminal[s], s.IsTerminal(), string(s))
	}
}

func TestParseRunState(t *testing.T) {
	state, err := ParseRunState(" running ")
	require.NoError(t, err)
	assert.Equal(t, RunStateRunning, state)

	_, err = ParseRunState("DONE")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition(RunStateQueued, RunStateNotStarted))

	err := CheckTransition(RunStateCompleted, RunStateRunning)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, RunStateCompleted, te.From)
	assert.Equal(t, RunStateRunning, te.To)
}

func TestValidateFilename(t *testing.T) {
	assert.NoError(t, ValidateFilename("out.csv"))
	for _, bad := range []string{"", ".", "..", "a/b.csv", `..\x`} {
		assert.ErrorIs(t, ValidateFilename(bad), ErrValidation, bad)
	}
}

func TestJoinConsole(t *testing.T) {
	out := JoinConsole([]ConsoleChunk{
		{Stdout: "pull\n"},
		{Stderr: "warn\n"},
		{Stdout: "run\n", Stderr: "boom\n"},
	})
	assert.Equal(t, "pull\nrun\n", out.Stdout)
	assert.Equal(t, "warn\nboom\n", out.Stderr)
}

func TestCurrentState(t *testing.T) {
	assert.Equal(t, RunState(""), CurrentState(nil))
	history := []PipelineRunState{{State: RunStateQueued}, {State: RunStateNotStarted}}
	assert.Equal(t, RunStateNotStarted, CurrentState(history))
}

func TestPipelineValidate_CommandLineValues(t *testing.T) {
	valid := Pipeline{
		Name:             "p",
		DockerImage:      "python:3.12-slim",
		RepositoryURL:    "https://example.com/p.git",
		RepositoryBranch: "main",
		RepositoryScript: "openfido.sh",
	}
	require.NoError(t, valid.Validate())

	for _, url := range []string{"git@example.com:org/p.git", "ssh://git@example.com/p.git", "/srv/git/p.git"} {
		p := valid
		p.RepositoryURL = url
		assert.NoError(t, p.Validate(), url)
	}

	cases := map[string]func(p *Pipeline){
		"image option":   func(p *Pipeline) { p.DockerImage = "--privileged" },
		"url option":     func(p *Pipeline) { p.RepositoryURL = "--upload-pack=touch /tmp/x" },
		"branch option":  func(p *Pipeline) { p.RepositoryBranch = "-b" },
		"ext transport":  func(p *Pipeline) { p.RepositoryURL = "ext::sh -c touch% /tmp/x" },
		"unknown scheme": func(p *Pipeline) { p.RepositoryURL = "gopher://example.com/p" },
	}
	for name, mutate := range cases {
		p := valid
		mutate(&p)
		assert.ErrorIs(t, p.Validate(), ErrValidation, name)
	}
}
