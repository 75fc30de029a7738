package domain

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pipeline — переиспользуемый контейнерный скрипт против git-репозитория.
//
// Pipeline неизменяем, пока на него ссылается хотя бы один
// неудалённый WorkflowPipeline.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — имя pipeline.
	Name string `json:"name"`

	// Description — описание назначения.
	Description string `json:"description"`

	// DockerImage — образ контейнера, например "python:3.12-slim".
	DockerImage string `json:"docker_image"`

	// RepositoryURL — адрес git-репозитория со скриптом.
	RepositoryURL string `json:"repository_url"`

	// RepositoryBranch — ветка, которую клонирует воркер.
	RepositoryBranch string `json:"repository_branch"`

	// RepositoryScript — путь к entry-скрипту внутри репозитория.
	RepositoryScript string `json:"repository_script"`

	// IsDeleted — флаг мягкого удаления.
	IsDeleted bool `json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate проверяет обязательные поля pipeline.
func (p *Pipeline) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return Validationf("pipeline name is required")
	case strings.TrimSpace(p.DockerImage) == "":
		return Validationf("docker image is required")
	case strings.TrimSpace(p.RepositoryURL) == "":
		return Validationf("repository url is required")
	case strings.TrimSpace(p.RepositoryBranch) == "":
		return Validationf("repository branch is required")
	case strings.TrimSpace(p.RepositoryScript) == "":
		return Validationf("repository script is required")
	}

	// Значения уходят в командную строку docker и git
	for _, f := range []struct{ name, value string }{
		{"docker image", p.DockerImage},
		{"repository url", p.RepositoryURL},
		{"repository branch", p.RepositoryBranch},
	} {
		if strings.HasPrefix(strings.TrimSpace(f.value), "-") {
			return Validationf("%s must not start with '-'", f.name)
		}
	}
	return validateRepositoryURL(p.RepositoryURL)
}

// repositorySchemes — допустимые схемы URL репозитория.
var repositorySchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ssh":   true,
	"git":   true,
	"file":  true,
}

// validateRepositoryURL принимает URL с известной схемой, scp-форму
// (git@host:path) и локальный путь. Транспорты вида "ext::cmd" запрещены.
func validateRepositoryURL(raw string) error {
	if strings.Contains(raw, "::") {
		return Validationf("repository url %q uses a remote helper transport", raw)
	}
	scheme, _, ok := strings.Cut(raw, "://")
	if ok && !repositorySchemes[strings.ToLower(scheme)] {
		return Validationf("repository url scheme %q is not supported", scheme)
	}
	return nil
}

// PipelineRun — одно выполнение pipeline.
//
// Run создаётся когда:
// - Пользователь запрашивает выполнение напрямую
// - Scheduler создаёт run для узла workflow
//
// Состояние run не хранится в строке run: текущее состояние —
// последняя запись в журнале PipelineRunState.
type PipelineRun struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// PipelineID — pipeline, который выполняется.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Sequence — порядковый номер run внутри pipeline (1, 2, 3, ...).
	Sequence int `json:"sequence"`

	// CallbackURL — адрес для уведомлений о смене состояния (опционально).
	CallbackURL string `json:"callback_url,omitempty"`

	// IsDeleted — флаг мягкого удаления.
	IsDeleted bool `json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
}

// PipelineRunState — запись журнала переходов.
// Записи только добавляются, никогда не изменяются и не удаляются.
type PipelineRunState struct {
	// ID — монотонно растущий номер записи.
	ID int64 `json:"id"`

	RunID     uuid.UUID `json:"run_id"`
	State     RunState  `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// PipelineRunInput — входной файл run: имя и URL, откуда его скачать.
type PipelineRunInput struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate проверяет имя файла и URL входа.
// Имя файла должно быть простым именем без каталогов.
func (in *PipelineRunInput) Validate() error {
	if err := ValidateFilename(in.Filename); err != nil {
		return err
	}
	if strings.TrimSpace(in.URL) == "" {
		return Validationf("input %q has no url", in.Filename)
	}
	return nil
}

// PipelineRunArtifact — именованный результат run.
//
// URL не хранится: он вычисляется из объектного хранилища при чтении.
type PipelineRunArtifact struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Name      string    `json:"name"`
	ObjectKey string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	// URL — временная ссылка на скачивание (заполняется при чтении).
	URL string `json:"url,omitempty"`
}

// ArtifactKey возвращает ключ объекта для артефакта run.
func ArtifactKey(pipelineID, runID, artifactID uuid.UUID, name string) string {
	return path.Join("pipelines", pipelineID.String(), "runs", runID.String(), artifactID.String(), name)
}

// ValidateFilename проверяет, что имя — один элемент пути.
func ValidateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return Validationf("invalid filename %q", name)
	case strings.ContainsAny(name, `/\`):
		return Validationf("filename %q must not contain path separators", name)
	}
	return nil
}

// ConsoleChunk — порция вывода консоли.
type ConsoleChunk struct {
	ID        int64     `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	CreatedAt time.Time `json:"created_at"`
}

// ConsoleOutput — склеенный вывод консоли run.
type ConsoleOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// JoinConsole склеивает порции в порядке добавления.
func JoinConsole(chunks []ConsoleChunk) ConsoleOutput {
	var stdout, stderr strings.Builder
	for _, c := range chunks {
		stdout.WriteString(c.Stdout)
		stderr.WriteString(c.Stderr)
	}
	return ConsoleOutput{Stdout: stdout.String(), Stderr: stderr.String()}
}

// CurrentState возвращает последнее состояние из журнала.
// Пустой журнал даёт пустую строку.
func CurrentState(history []PipelineRunState) RunState {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].State
}
