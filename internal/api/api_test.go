package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/catalog"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/queue"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	srv   *httptest.Server
	queue *queue.Memory
}

func newAPIEnv(t *testing.T, maxUpload int64) *apiEnv {
	t.Helper()

	objects := storage.NewMemory("")
	objSrv := httptest.NewServer(objects)
	t.Cleanup(objSrv.Close)
	objects.SetBaseURL(objSrv.URL)

	store := repo.NewMemory()
	q := queue.NewMemory(64)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHandler(Config{
		Catalog: catalog.New(catalog.Config{Store: store, Logger: logger}),
		Runs: orchestrator.New(orchestrator.Config{
			Store:   store,
			Objects: objects,
			Queue:   q,
			URLTTL:  time.Hour,
			Logger:  logger,
		}),
		MaxUploadBytes: maxUpload,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiEnv{srv: srv, queue: q}
}

// do выполняет запрос с JSON телом и возвращает статус и тело ответа.
func (e *apiEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *apiEnv) upload(t *testing.T, runID uuid.UUID, name, content string) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(formFile, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.srv.URL+"/api/v1/runs/"+runID.String()+"/artifacts", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return resp.Data
}

func errorCode(t *testing.T, body []byte) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return resp.Error.Code
}

func (e *apiEnv) createPipeline(t *testing.T, name string) domain.Pipeline {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/pipelines", PipelineRequest{
		Name:             name,
		DockerImage:      "alpine:3.20",
		RepositoryURL:    "https://example.com/" + name + ".git",
		RepositoryBranch: "main",
		RepositoryScript: "openfido.sh",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	return decodeData[domain.Pipeline](t, body)
}

func TestPipelines_CRUD(t *testing.T) {
	env := newAPIEnv(t, 0)
	p := env.createPipeline(t, "etl")

	status, body := env.do(t, http.MethodGet, "/api/v1/pipelines/"+p.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "etl", decodeData[domain.Pipeline](t, body).Name)

	status, body = env.do(t, http.MethodPut, "/api/v1/pipelines/"+p.ID.String(), PipelineRequest{
		Name:             "etl-v2",
		DockerImage:      "alpine:3.20",
		RepositoryURL:    p.RepositoryURL,
		RepositoryBranch: "develop",
		RepositoryScript: "openfido.sh",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "develop", decodeData[domain.Pipeline](t, body).RepositoryBranch)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/pipelines/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = env.do(t, http.MethodGet, "/api/v1/pipelines/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, body))
}

func TestPipelines_Validation(t *testing.T) {
	env := newAPIEnv(t, 0)

	status, body := env.do(t, http.MethodPost, "/api/v1/pipelines", PipelineRequest{Name: "no-image"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, body))

	status, _ = env.do(t, http.MethodGet, "/api/v1/pipelines/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRuns_Lifecycle(t *testing.T) {
	env := newAPIEnv(t, 0)
	p := env.createPipeline(t, "model")

	status, body := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", RunRequest{
		Inputs: []orchestrator.InputSpec{{Filename: "in.csv", URL: "https://example.com/in.csv"}},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	run := decodeData[domain.PipelineRun](t, body)
	assert.Equal(t, 1, run.Sequence)
	assert.Equal(t, 1, env.queue.Len())

	runPath := "/api/v1/runs/" + run.ID.String()

	status, body = env.do(t, http.MethodPut, runPath+"/state", StateRequest{State: "running"})
	require.Equal(t, http.StatusOK, status, string(body))
	tr := decodeData[TransitionResponse](t, body)
	assert.Equal(t, domain.RunStateNotStarted, tr.From)
	assert.Equal(t, domain.RunStateRunning, tr.To)

	status, _ = env.do(t, http.MethodPost, runPath+"/console", ConsoleRequest{Stdout: "hello\n"})
	assert.Equal(t, http.StatusNoContent, status)

	status, body = env.upload(t, run.ID, "out.csv", "a,b\n1,2\n")
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = env.do(t, http.MethodPut, runPath+"/state", StateRequest{State: "COMPLETED"})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, runPath, nil)
	require.Equal(t, http.StatusOK, status)
	view := decodeData[orchestrator.RunView](t, body)
	assert.Equal(t, domain.RunStateCompleted, view.State)
	assert.Len(t, view.States, 4)
	assert.Equal(t, "hello\n", view.Console.Stdout)
	require.Len(t, view.Artifacts, 1)
	assert.NotEmpty(t, view.Artifacts[0].URL)

	status, body = env.do(t, http.MethodGet, "/api/v1/pipelines/"+p.ID.String()+"/runs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]domain.PipelineRun](t, body), 1)
}

func TestRuns_StateErrors(t *testing.T) {
	env := newAPIEnv(t, 0)
	p := env.createPipeline(t, "model")

	_, body := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", RunRequest{})
	run := decodeData[domain.PipelineRun](t, body)
	runPath := "/api/v1/runs/" + run.ID.String()

	status, body := env.do(t, http.MethodPut, runPath+"/state", StateRequest{State: "DONE"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, body))

	status, body = env.do(t, http.MethodPut, runPath+"/state", StateRequest{State: "COMPLETED"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeInvalidTransition, errorCode(t, body))

	status, _ = env.do(t, http.MethodPost, runPath+"/cancel", nil)
	require.Equal(t, http.StatusOK, status)

	// Артефакты отменённого run не принимаются
	status, body = env.upload(t, run.ID, "late.csv", "x")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, ErrCodeConflict, errorCode(t, body))

	status, _ = env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRuns_UploadTooLarge(t *testing.T) {
	env := newAPIEnv(t, 16)
	p := env.createPipeline(t, "big")

	_, body := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", RunRequest{})
	run := decodeData[domain.PipelineRun](t, body)

	status, _ := env.upload(t, run.ID, "big.bin", string(bytes.Repeat([]byte("x"), 4096)))
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, status)
}

func TestWorkflows_GraphAndRun(t *testing.T) {
	env := newAPIEnv(t, 0)
	a := env.createPipeline(t, "a")
	b := env.createPipeline(t, "b")

	status, body := env.do(t, http.MethodPost, "/api/v1/workflows", WorkflowRequest{Name: "wf"})
	require.Equal(t, http.StatusCreated, status, string(body))
	wf := decodeData[domain.Workflow](t, body)
	wfPath := "/api/v1/workflows/" + wf.ID.String()

	// Пустой workflow запустить нельзя
	status, body = env.do(t, http.MethodPost, wfPath+"/runs", RunRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeGraph, errorCode(t, body))

	addNode := func(pipelineID uuid.UUID) domain.WorkflowPipeline {
		status, body := env.do(t, http.MethodPost, wfPath+"/nodes", NodeRequest{PipelineID: pipelineID})
		require.Equal(t, http.StatusCreated, status, string(body))
		return decodeData[domain.WorkflowPipeline](t, body)
	}
	na, nb := addNode(a.ID), addNode(b.ID)

	status, body = env.do(t, http.MethodPost, wfPath+"/edges", EdgeRequest{FromNodeID: na.ID, ToNodeID: nb.ID})
	require.Equal(t, http.StatusCreated, status, string(body))

	// Обратное ребро замкнуло бы цикл
	status, body = env.do(t, http.MethodPost, wfPath+"/edges/check", EdgeRequest{FromNodeID: nb.ID, ToNodeID: na.ID})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[CycleCheckResponse](t, body).WouldCreateCycle)

	status, body = env.do(t, http.MethodPost, wfPath+"/edges", EdgeRequest{FromNodeID: nb.ID, ToNodeID: na.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeGraph, errorCode(t, body))

	// Pipeline в составе workflow неизменяем
	status, _ = env.do(t, http.MethodDelete, "/api/v1/pipelines/"+a.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodGet, wfPath, nil)
	require.Equal(t, http.StatusOK, status)
	g := decodeData[catalog.WorkflowGraph](t, body)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 1)

	status, body = env.do(t, http.MethodPost, wfPath+"/runs", RunRequest{})
	require.Equal(t, http.StatusCreated, status, string(body))
	wr := decodeData[domain.WorkflowRun](t, body)
	require.Len(t, wr.Runs, 2)
	assert.Equal(t, 1, env.queue.Len(), "only the root is ready")

	status, body = env.do(t, http.MethodGet, "/api/v1/workflow-runs/"+wr.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[domain.WorkflowRun](t, body).Runs, 2)

	var rootRun uuid.UUID
	for _, link := range wr.Runs {
		if link.WorkflowPipelineID == na.ID {
			rootRun = link.PipelineRunID
		}
	}
	status, body = env.do(t, http.MethodGet, "/api/v1/runs/"+rootRun.String()+"/destinations", nil)
	require.Equal(t, http.StatusOK, status)
	dests := decodeData[[]domain.WorkflowPipelineRun](t, body)
	require.Len(t, dests, 1)
	assert.Equal(t, nb.ID, dests[0].WorkflowPipelineID)

	status, body = env.do(t, http.MethodGet, "/api/v1/runs/"+dests[0].PipelineRunID.String()+"/sources", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]domain.WorkflowPipelineRun](t, body), 1)
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Chain(RequestID(logger), Recovery(), Logging())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, errorCode(t, rec.Body.Bytes()))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRequestID_Propagated(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Chain(RequestID(logger), Logging())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"status":418`)
}
