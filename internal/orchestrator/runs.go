package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/ledger"
	"github.com/shaiso/Pipeworks/internal/repo"
)

// InputSpec — входной файл, переданный при запуске.
type InputSpec struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// RunRequest — параметры запуска pipeline или workflow.
type RunRequest struct {
	Inputs      []InputSpec `json:"inputs"`
	CallbackURL string      `json:"callback_url,omitempty"`
}

// Validate проверяет входы и callback URL.
func (r *RunRequest) Validate() error {
	seen := make(map[string]bool, len(r.Inputs))
	for _, in := range r.Inputs {
		input := domain.PipelineRunInput{Filename: in.Filename, URL: in.URL}
		if err := input.Validate(); err != nil {
			return err
		}
		if seen[in.Filename] {
			return domain.Validationf("duplicate input %q", in.Filename)
		}
		seen[in.Filename] = true
	}
	if r.CallbackURL != "" {
		u, err := url.Parse(r.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.Validationf("invalid callback url %q", r.CallbackURL)
		}
	}
	return nil
}

// RunView — run со всей историей для чтения.
type RunView struct {
	domain.PipelineRun
	State     domain.RunState              `json:"state"`
	States    []domain.PipelineRunState    `json:"states"`
	Inputs    []domain.PipelineRunInput    `json:"inputs"`
	Artifacts []domain.PipelineRunArtifact `json:"artifacts"`
	Console   domain.ConsoleOutput         `json:"console"`
}

// RunSpec — всё, что нужно исполнителю для выполнения run.
type RunSpec struct {
	Run      domain.PipelineRun        `json:"run"`
	Pipeline domain.Pipeline           `json:"pipeline"`
	State    domain.RunState           `json:"state"`
	Inputs   []domain.PipelineRunInput `json:"inputs"`
}

// CreatePipelineRun создаёт run, готовый к выполнению (QUEUED → NOT_STARTED),
// и публикует его в очередь.
func (s *Service) CreatePipelineRun(ctx context.Context, pipelineID uuid.UUID, req RunRequest) (*domain.PipelineRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &domain.PipelineRun{
		ID:          uuid.New(),
		PipelineID:  pipelineID,
		CallbackURL: req.CallbackURL,
	}

	err := s.inTx(ctx, func(ctx context.Context, tx repo.Tx, eff *effects) error {
		p, err := tx.GetPipeline(ctx, pipelineID)
		if err != nil {
			return notFound(err, ErrPipelineNotFound)
		}
		if p.IsDeleted {
			return ErrPipelineNotFound
		}

		now := s.now()
		trs, err := ledger.Seed(ctx, tx, run, true, now)
		if err != nil {
			return err
		}
		eff.add(trs...)
		return addInputs(ctx, tx, run.ID, req.Inputs, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pipeline run created",
		"run_id", run.ID,
		"pipeline_id", pipelineID,
		"sequence", run.Sequence,
	)
	return run, nil
}

// UpdateState переводит run в состояние next.
//
// Переход в COMPLETED распространяет артефакты и освобождает зависимые runs,
// переход в FAILED/CANCELLED отменяет ещё не запущенных потомков.
// Всё это выполняется в одной транзакции с самим переходом.
func (s *Service) UpdateState(ctx context.Context, runID uuid.UUID, next domain.RunState) (ledger.Transition, error) {
	var tr ledger.Transition
	err := s.inTx(ctx, func(ctx context.Context, tx repo.Tx, eff *effects) error {
		var err error
		tr, err = ledger.Append(ctx, tx, runID, next, s.now())
		if err != nil {
			return notFound(err, ErrRunNotFound)
		}
		eff.add(tr)
		return s.afterTransition(ctx, tx, tr, eff)
	})
	if err != nil {
		return ledger.Transition{}, err
	}

	s.logger.Info("run state changed",
		"run_id", runID,
		"from", tr.From,
		"to", tr.To,
	)
	return tr, nil
}

// CancelRun отменяет run, который ещё не завершился.
func (s *Service) CancelRun(ctx context.Context, runID uuid.UUID) (ledger.Transition, error) {
	return s.UpdateState(ctx, runID, domain.RunStateCancelled)
}

// AppendConsole добавляет порцию вывода к консоли run.
func (s *Service) AppendConsole(ctx context.Context, runID uuid.UUID, stdout, stderr string) error {
	if stdout == "" && stderr == "" {
		return nil
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		err := ledger.AppendConsole(ctx, tx, runID, stdout, stderr, s.now())
		return notFound(err, ErrRunNotFound)
	})
}

// UploadArtifact сохраняет содержимое r как артефакт run.
// Артефакты завершённого run не принимаются.
func (s *Service) UploadArtifact(ctx context.Context, runID uuid.UUID, name string, r io.Reader, size int64) (*domain.PipelineRunArtifact, error) {
	if err := domain.ValidateFilename(name); err != nil {
		return nil, err
	}

	var run *domain.PipelineRun
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		run, err = s.activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		return ensureNotTerminal(ctx, tx, runID)
	})
	if err != nil {
		return nil, err
	}

	artifact := &domain.PipelineRunArtifact{
		ID:    uuid.New(),
		RunID: runID,
		Name:  name,
		Size:  size,
	}
	artifact.ObjectKey = domain.ArtifactKey(run.PipelineID, runID, artifact.ID, name)

	// Объект загружается вне транзакции: строка артефакта появляется
	// только после успешной загрузки
	if err := s.objects.Put(ctx, artifact.ObjectKey, r, size); err != nil {
		return nil, fmt.Errorf("upload artifact %s: %w", name, err)
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if err := ensureNotTerminal(ctx, tx, runID); err != nil {
			return err
		}
		artifact.CreatedAt = s.now()
		return tx.AddArtifact(ctx, artifact)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("artifact uploaded",
		"run_id", runID,
		"artifact", name,
		"size", size,
	)
	return artifact, nil
}

// GetRun возвращает run с историей, входами, артефактами и консолью.
// Ссылки на артефакты подписываются заново при каждом чтении.
func (s *Service) GetRun(ctx context.Context, runID uuid.UUID) (*RunView, error) {
	var view RunView
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		run, err := s.activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		view.PipelineRun = *run

		if view.States, err = ledger.History(ctx, tx, runID); err != nil {
			return err
		}
		view.State = domain.CurrentState(view.States)

		if view.Inputs, err = tx.ListRunInputs(ctx, runID); err != nil {
			return err
		}
		if view.Artifacts, err = tx.ListArtifacts(ctx, runID); err != nil {
			return err
		}
		view.Console, err = ledger.ReadConsole(ctx, tx, runID)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range view.Artifacts {
		a := &view.Artifacts[i]
		link, err := s.objects.PresignedURL(ctx, a.ObjectKey, s.urlTTL)
		if err != nil {
			s.logger.Warn("failed to presign artifact",
				"run_id", runID,
				"artifact", a.Name,
				"error", err,
			)
			continue
		}
		a.URL = link
	}
	return &view, nil
}

// GetRunSpec возвращает run, его pipeline и входы для исполнителя.
func (s *Service) GetRunSpec(ctx context.Context, runID uuid.UUID) (*RunSpec, error) {
	var spec RunSpec
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		run, err := s.activeRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		p, err := tx.GetPipeline(ctx, run.PipelineID)
		if err != nil {
			return notFound(err, ErrPipelineNotFound)
		}
		state, err := ledger.Current(ctx, tx, runID)
		if err != nil {
			return err
		}
		inputs, err := tx.ListRunInputs(ctx, runID)
		if err != nil {
			return err
		}
		spec = RunSpec{Run: *run, Pipeline: *p, State: state, Inputs: inputs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// ListRuns возвращает runs pipeline по возрастанию sequence.
func (s *Service) ListRuns(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineRun, error) {
	var runs []domain.PipelineRun
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := tx.GetPipeline(ctx, pipelineID); err != nil {
			return notFound(err, ErrPipelineNotFound)
		}
		var err error
		runs, err = tx.ListRuns(ctx, pipelineID)
		return err
	})
	return runs, err
}

func (s *Service) activeRun(ctx context.Context, tx repo.Tx, runID uuid.UUID) (*domain.PipelineRun, error) {
	run, err := tx.GetRun(ctx, runID)
	if err != nil {
		return nil, notFound(err, ErrRunNotFound)
	}
	if run.IsDeleted {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func ensureNotTerminal(ctx context.Context, tx repo.Tx, runID uuid.UUID) error {
	state, err := ledger.Current(ctx, tx, runID)
	if err != nil {
		return err
	}
	if state.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunTerminal, state)
	}
	return nil
}

func addInputs(ctx context.Context, tx repo.Tx, runID uuid.UUID, inputs []InputSpec, at time.Time) error {
	for _, in := range inputs {
		err := tx.AddRunInput(ctx, &domain.PipelineRunInput{
			ID:        uuid.New(),
			RunID:     runID,
			Filename:  in.Filename,
			URL:       in.URL,
			CreatedAt: at,
		})
		if err != nil {
			return fmt.Errorf("add input %s: %w", in.Filename, err)
		}
	}
	return nil
}
