package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/runtime"
)

// Точки монтирования внутри контейнера.
const (
	MountSource = "/openfido/src"
	MountInput  = "/openfido/input"
	MountOutput = "/openfido/output"
)

// workspace — рабочий каталог одного run.
type workspace struct {
	root   string
	src    string
	input  string
	output string
}

func newWorkspace(root string) workspace {
	return workspace{
		root:   root,
		src:    filepath.Join(root, "src"),
		input:  filepath.Join(root, "input"),
		output: filepath.Join(root, "output"),
	}
}

// execution — состояние одного выполнения run.
type execution struct {
	*Executor
	spec   *orchestrator.RunSpec
	ws     workspace
	logger *slog.Logger

	// script — путь entry-скрипта относительно корня репозитория.
	script string
}

// pull скачивает образ контейнера.
func (x *execution) pull(ctx context.Context) error {
	res, err := x.containers.Pull(ctx, x.spec.Pipeline.DockerImage)
	return x.finish(ctx, res, err)
}

// clone делает shallow clone ветки pipeline.
func (x *execution) clone(ctx context.Context) error {
	p := x.spec.Pipeline
	res, err := x.sources.Clone(ctx, p.RepositoryURL, p.RepositoryBranch, x.ws.src)
	return x.finish(ctx, res, err)
}

// verifyScript проверяет, что entry-скрипт есть в клоне.
func (x *execution) verifyScript(_ context.Context) error {
	script := filepath.Clean(x.spec.Pipeline.RepositoryScript)
	if filepath.IsAbs(script) || script == ".." || strings.HasPrefix(script, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside the repository", ErrEntryScriptMissing, x.spec.Pipeline.RepositoryScript)
	}

	info, err := os.Stat(filepath.Join(x.ws.src, script))
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s in %s@%s", ErrEntryScriptMissing,
			x.spec.Pipeline.RepositoryScript,
			x.spec.Pipeline.RepositoryURL,
			x.spec.Pipeline.RepositoryBranch,
		)
	}
	x.script = filepath.ToSlash(script)
	return nil
}

// prepare создаёт каталоги input/ и output/.
func (x *execution) prepare(_ context.Context) error {
	for _, dir := range []string{x.ws.input, x.ws.output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Base(dir), err)
		}
	}
	return nil
}

// download скачивает входы run в input/.
func (x *execution) download(ctx context.Context) error {
	for _, in := range x.spec.Inputs {
		if err := domain.ValidateFilename(in.Filename); err != nil {
			return err
		}
		dest := filepath.Join(x.ws.input, in.Filename)
		if err := x.fetch(ctx, in.URL, dest, x.logger); err != nil {
			return fmt.Errorf("%s: %w", in.Filename, err)
		}
		x.logger.Debug("input downloaded", "filename", in.Filename)
	}
	return nil
}

// runContainer выполняет entry-скрипт в контейнере.
func (x *execution) runContainer(ctx context.Context) error {
	res, err := x.containers.Run(ctx, runtime.ContainerSpec{
		Image: x.spec.Pipeline.DockerImage,
		Mounts: []runtime.Mount{
			{Source: x.ws.src, Target: MountSource, ReadOnly: true},
			{Source: x.ws.input, Target: MountInput},
			{Source: x.ws.output, Target: MountOutput},
		},
		Env: map[string]string{
			"OPENFIDO_INPUT":  MountInput,
			"OPENFIDO_OUTPUT": MountOutput,
		},
		WorkDir: MountSource,
		Command: []string{"sh", x.script},
	})
	return x.finish(ctx, res, err)
}

// upload загружает каждый обычный файл output/ как артефакт.
func (x *execution) upload(ctx context.Context) error {
	entries, err := os.ReadDir(x.ws.output)
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := x.uploadFile(ctx, entry.Name()); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (x *execution) uploadFile(ctx context.Context, name string) error {
	path := filepath.Join(x.ws.output, name)
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return backoff.Permanent(err)
		}

		_, err = x.runs.UploadArtifact(ctx, x.spec.Run.ID, name, f, info.Size())
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, orchestrator.ErrRunTerminal) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(op, backoff.WithContext(x.newBackOff(), ctx), func(err error, d time.Duration) {
		x.logger.Warn("artifact upload failed, retrying", "artifact", name, "delay", d, "error", err)
	})
	if err != nil {
		return err
	}
	x.logger.Debug("artifact uploaded", "artifact", name)
	return nil
}

// finish дописывает вывод процесса в консоль и проверяет код выхода.
func (x *execution) finish(ctx context.Context, res runtime.Result, err error) error {
	if cerr := x.runs.AppendConsole(ctx, x.spec.Run.ID, res.Stdout, res.Stderr); cerr != nil {
		x.logger.Warn("failed to append console output", "error", cerr)
	}
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%w: exit code %d", ErrStepFailed, res.ExitCode)
	}
	return nil
}
