package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/ledger"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/runtime"
	"github.com/shaiso/Pipeworks/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	defaultDownloadTimeout = 5 * time.Minute
	defaultMaxRetries      = 3
)

// RunService — операции над run, которые нужны исполнителю.
// Реализуется orchestrator.Service.
type RunService interface {
	GetRunSpec(ctx context.Context, runID uuid.UUID) (*orchestrator.RunSpec, error)
	UpdateState(ctx context.Context, runID uuid.UUID, next domain.RunState) (ledger.Transition, error)
	AppendConsole(ctx context.Context, runID uuid.UUID, stdout, stderr string) error
	UploadArtifact(ctx context.Context, runID uuid.UUID, name string, r io.Reader, size int64) (*domain.PipelineRunArtifact, error)
}

// ContainerRuntime — запуск контейнеров.
type ContainerRuntime interface {
	Pull(ctx context.Context, image string) (runtime.Result, error)
	Run(ctx context.Context, spec runtime.ContainerSpec) (runtime.Result, error)
}

// SourceCloner — получение исходников pipeline.
type SourceCloner interface {
	Clone(ctx context.Context, repoURL, branch, dest string) (runtime.Result, error)
}

// Executor проводит один run через все шаги выполнения.
type Executor struct {
	runs       RunService
	containers ContainerRuntime
	sources    SourceCloner
	client     *http.Client

	// workDir — родительский каталог для рабочих каталогов runs.
	workDir string

	// newBackOff — политика повторов скачивания и загрузки.
	newBackOff func() backoff.BackOff

	logger *slog.Logger
	tracer trace.Tracer
}

// ExecutorConfig — конфигурация Executor.
type ExecutorConfig struct {
	Runs       RunService
	Containers ContainerRuntime
	Sources    SourceCloner

	// Client — HTTP-клиент для скачивания входов (default: таймаут 5m).
	Client *http.Client

	// WorkDir — каталог для рабочих каталогов (default: os.TempDir()).
	WorkDir string

	// BackOff — политика повторов сетевых операций
	// (default: экспоненциальная, 3 повтора).
	BackOff func() backoff.BackOff

	// Tracer — источник спанов run и шагов (default: telemetry.Tracer()).
	Tracer trace.Tracer

	Logger *slog.Logger
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultDownloadTimeout}
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	newBackOff := cfg.BackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), defaultMaxRetries)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}

	return &Executor{
		runs:       cfg.Runs,
		containers: cfg.Containers,
		sources:    cfg.Sources,
		client:     client,
		workDir:    workDir,
		newBackOff: newBackOff,
		logger:     logger,
		tracer:     tracer,
	}
}

// Execute выполняет run.
//
// Возвращает ErrRunNotReady, если run не в NOT_STARTED (повторная доставка).
// Ошибки шагов не возвращаются: они переводят run в FAILED.
// Ошибка возвращается только если run не удалось прочитать или захватить.
func (e *Executor) Execute(ctx context.Context, runID uuid.UUID) error {
	logger := telemetry.WithRunID(e.logger, runID.String())

	spec, err := e.runs.GetRunSpec(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run spec: %w", err)
	}
	if spec.State != domain.RunStateNotStarted {
		telemetry.Executions.WithLabelValues("skipped").Inc()
		return fmt.Errorf("%w: %s", ErrRunNotReady, spec.State)
	}

	// 1. Захват: переход под блокировкой строки run,
	// параллельная доставка той же задачи получит ErrInvalidTransition
	if _, err := e.runs.UpdateState(ctx, runID, domain.RunStateRunning); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			telemetry.Executions.WithLabelValues("skipped").Inc()
			return fmt.Errorf("%w: %v", ErrRunNotReady, err)
		}
		return fmt.Errorf("claim run: %w", err)
	}

	ctx, span := e.tracer.Start(ctx, "worker.Execute", trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("pipeline_id", spec.Pipeline.ID.String()),
	))
	defer span.End()

	logger.Info("run started",
		"pipeline_id", spec.Pipeline.ID,
		"image", spec.Pipeline.DockerImage,
		"inputs", len(spec.Inputs),
	)
	start := time.Now()

	if err := e.run(ctx, spec, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.Executions.WithLabelValues("failed").Inc()
		e.fail(ctx, runID, err, logger)
		return nil
	}

	if _, err := e.runs.UpdateState(ctx, runID, domain.RunStateCompleted); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.Executions.WithLabelValues("failed").Inc()
		e.fail(ctx, runID, fmt.Errorf("complete run: %w", err), logger)
		return nil
	}

	telemetry.Executions.WithLabelValues("completed").Inc()
	logger.Info("run completed", "duration", time.Since(start))
	return nil
}

// run выполняет шаги 2–8 в отдельном рабочем каталоге.
func (e *Executor) run(ctx context.Context, spec *orchestrator.RunSpec, logger *slog.Logger) error {
	dir, err := os.MkdirTemp(e.workDir, "run-"+spec.Run.ID.String()+"-")
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove workspace", "dir", dir, "error", err)
		}
	}()

	ws := newWorkspace(dir)
	x := &execution{Executor: e, spec: spec, ws: ws, logger: logger}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"pull", x.pull},
		{"clone", x.clone},
		{"verify", x.verifyScript},
		{"prepare", x.prepare},
		{"download", x.download},
		{"container", x.runContainer},
		{"upload", x.upload},
	}
	for _, s := range steps {
		if err := e.step(ctx, spec.Run.ID, s.name, s.fn); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// step выполняет шаг в отдельном спане и пишет метрику длительности.
func (e *Executor) step(ctx context.Context, runID uuid.UUID, name string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "worker.step."+name, trace.WithAttributes(
		attribute.String("run_id", runID.String()),
		attribute.String("step", name),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	telemetry.ExecutorStepDuration.
		WithLabelValues(name, telemetry.Outcome(err)).
		Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// fail дописывает ошибку в stderr и переводит run в FAILED.
// Ошибки отчёта логируются и не возвращаются.
func (e *Executor) fail(ctx context.Context, runID uuid.UUID, cause error, logger *slog.Logger) {
	logger.Warn("run failed", "error", cause)

	// Отчёт об отказе отправляется даже при отменённом ctx
	ctx = context.WithoutCancel(ctx)

	if err := e.runs.AppendConsole(ctx, runID, "", cause.Error()+"\n"); err != nil {
		logger.Error("failed to report run error to console", "error", err)
	}
	if _, err := e.runs.UpdateState(ctx, runID, domain.RunStateFailed); err != nil {
		logger.Error("failed to mark run as failed", "error", err)
	}
}
