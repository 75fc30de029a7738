package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Pipeworks/internal/catalog"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
)

// defaultMaxUploadBytes — предел размера загружаемого артефакта.
const defaultMaxUploadBytes = 1 << 30

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	catalog        *catalog.Service
	runs           *orchestrator.Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Catalog *catalog.Service
	Runs    *orchestrator.Service

	// MaxUploadBytes — предел размера артефакта (default: 1 GiB).
	MaxUploadBytes int64

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:        cfg.Catalog,
		runs:           cfg.Runs,
		maxUploadBytes: maxUpload,
		logger:         logger,
	}
}

// pathID извлекает UUID из параметра пути.
// При ошибке отправляет 400 и возвращает false.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		BadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON читает тело запроса в dst.
// При ошибке отправляет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
