package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// --- Response types (дублируются из API, CLI не импортирует internal/*) ---

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	DockerImage      string `json:"docker_image"`
	RepositoryURL    string `json:"repository_url"`
	RepositoryBranch string `json:"repository_branch"`
	RepositoryScript string `json:"repository_script"`
	CreatedAt        string `json:"created_at"`
}

// RunResponse — pipeline run из API.
type RunResponse struct {
	ID          string `json:"id"`
	PipelineID  string `json:"pipeline_id"`
	Sequence    int    `json:"sequence"`
	CallbackURL string `json:"callback_url,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// RunStateResponse — запись журнала состояний.
type RunStateResponse struct {
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}

// InputResponse — входной файл run.
type InputResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// ArtifactResponse — артефакт run.
type ArtifactResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ConsoleResponse — склеенный вывод консоли.
type ConsoleResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// RunDetailsResponse — run со всей историей.
type RunDetailsResponse struct {
	RunResponse
	State     string             `json:"state"`
	States    []RunStateResponse `json:"states"`
	Inputs    []InputResponse    `json:"inputs"`
	Artifacts []ArtifactResponse `json:"artifacts"`
	Console   ConsoleResponse    `json:"console"`
}

// TransitionResponse — выполненный переход состояния.
type TransitionResponse struct {
	RunID string `json:"run_id"`
	From  string `json:"from"`
	To    string `json:"to"`
	At    string `json:"at"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// NodeResponse — узел workflow.
type NodeResponse struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	PipelineID string `json:"pipeline_id"`
}

// EdgeResponse — ребро workflow.
type EdgeResponse struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
}

// WorkflowGraphResponse — workflow с узлами и рёбрами.
type WorkflowGraphResponse struct {
	Workflow WorkflowResponse `json:"workflow"`
	Nodes    []NodeResponse   `json:"nodes"`
	Edges    []EdgeResponse   `json:"edges"`
}

// WorkflowRunLink — связь узла с его pipeline run.
type WorkflowRunLink struct {
	WorkflowPipelineID string `json:"workflow_pipeline_id"`
	PipelineRunID      string `json:"pipeline_run_id"`
}

// WorkflowRunResponse — запуск workflow.
type WorkflowRunResponse struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	CreatedAt  string            `json:"created_at"`
	Runs       []WorkflowRunLink `json:"runs"`
}

// --- Request types ---

// CreatePipelineRequest — создание или замена pipeline.
type CreatePipelineRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	DockerImage      string `json:"docker_image"`
	RepositoryURL    string `json:"repository_url"`
	RepositoryBranch string `json:"repository_branch"`
	RepositoryScript string `json:"repository_script"`
}

// RunInput — входной файл запуска.
type RunInput struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// CreateRunRequest — запуск pipeline или workflow.
type CreateRunRequest struct {
	Inputs      []RunInput `json:"inputs,omitempty"`
	CallbackURL string     `json:"callback_url,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Pipeworks API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Pipelines ---

// ListPipelines возвращает все pipelines.
func (c *Client) ListPipelines() ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", &pipelines)
	return pipelines, err
}

// CreatePipeline создаёт pipeline.
func (c *Client) CreatePipeline(req CreatePipelineRequest) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.post("/api/v1/pipelines", req, &p)
	return &p, err
}

// GetPipeline возвращает pipeline по ID.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/api/v1/pipelines/"+id, &p)
	return &p, err
}

// DeletePipeline удаляет pipeline.
func (c *Client) DeletePipeline(id string) error {
	return c.delete("/api/v1/pipelines/" + id)
}

// --- Runs ---

// ListRuns возвращает runs pipeline.
func (c *Client) ListRuns(pipelineID string) ([]RunResponse, error) {
	var runs []RunResponse
	err := c.list("/api/v1/pipelines/"+pipelineID+"/runs", &runs)
	return runs, err
}

// CreateRun запускает pipeline.
func (c *Client) CreateRun(pipelineID string, req CreateRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/pipelines/"+pipelineID+"/runs", req, &run)
	return &run, err
}

// GetRun возвращает run с историей.
func (c *Client) GetRun(id string) (*RunDetailsResponse, error) {
	var run RunDetailsResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// SetRunState переводит run в состояние state.
func (c *Client) SetRunState(id, state string) (*TransitionResponse, error) {
	var tr TransitionResponse
	err := c.put("/api/v1/runs/"+id+"/state", map[string]string{"state": state}, &tr)
	return &tr, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) (*TransitionResponse, error) {
	var tr TransitionResponse
	err := c.post("/api/v1/runs/"+id+"/cancel", nil, &tr)
	return &tr, err
}

// UploadArtifact загружает файл path как артефакт run.
func (c *Client) UploadArtifact(runID, path string) (*ArtifactResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/runs/"+runID+"/artifacts", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var artifact ArtifactResponse
	if err := c.decodeData(resp, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// --- Workflows ---

// ListWorkflows возвращает все workflows.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", &workflows)
	return workflows, err
}

// CreateWorkflow создаёт workflow.
func (c *Client) CreateWorkflow(name, description string) (*WorkflowResponse, error) {
	body := map[string]string{"name": name, "description": description}
	var w WorkflowResponse
	err := c.post("/api/v1/workflows", body, &w)
	return &w, err
}

// GetWorkflow возвращает workflow с графом.
func (c *Client) GetWorkflow(id string) (*WorkflowGraphResponse, error) {
	var g WorkflowGraphResponse
	err := c.get("/api/v1/workflows/"+id, &g)
	return &g, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// AddNode размещает pipeline в workflow.
func (c *Client) AddNode(workflowID, pipelineID string) (*NodeResponse, error) {
	var n NodeResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/nodes", map[string]string{"pipeline_id": pipelineID}, &n)
	return &n, err
}

// RemoveNode удаляет узел.
func (c *Client) RemoveNode(id string) error {
	return c.delete("/api/v1/nodes/" + id)
}

// AddEdge добавляет ребро from → to.
func (c *Client) AddEdge(workflowID, from, to string) (*EdgeResponse, error) {
	var e EdgeResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/edges", edgeBody(from, to), &e)
	return &e, err
}

// CheckEdge сообщает, замкнёт ли ребро from → to цикл.
func (c *Client) CheckEdge(workflowID, from, to string) (bool, error) {
	var resp struct {
		WouldCreateCycle bool `json:"would_create_cycle"`
	}
	err := c.post("/api/v1/workflows/"+workflowID+"/edges/check", edgeBody(from, to), &resp)
	return resp.WouldCreateCycle, err
}

// RemoveEdge удаляет ребро.
func (c *Client) RemoveEdge(id string) error {
	return c.delete("/api/v1/edges/" + id)
}

// RunWorkflow запускает workflow.
func (c *Client) RunWorkflow(workflowID string, req CreateRunRequest) (*WorkflowRunResponse, error) {
	var wr WorkflowRunResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/runs", req, &wr)
	return &wr, err
}

// GetWorkflowRun возвращает запуск workflow.
func (c *Client) GetWorkflowRun(id string) (*WorkflowRunResponse, error) {
	var wr WorkflowRunResponse
	err := c.get("/api/v1/workflow-runs/"+id, &wr)
	return &wr, err
}

func edgeBody(from, to string) map[string]string {
	return map[string]string{"from_node_id": from, "to_node_id": to}
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
