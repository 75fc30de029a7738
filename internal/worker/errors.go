package worker

import "errors"

// Ошибки воркера.
var (
	// ErrRunNotReady — run не в NOT_STARTED: уже захвачен, завершён или отменён.
	ErrRunNotReady = errors.New("run is not ready to execute")

	// ErrEntryScriptMissing — в клоне репозитория нет entry-скрипта.
	ErrEntryScriptMissing = errors.New("entry script not found")

	// ErrStepFailed — внешний процесс шага завершился с ненулевым кодом.
	ErrStepFailed = errors.New("step failed")

	// ErrDownload — не удалось скачать вход.
	ErrDownload = errors.New("input download failed")
)
