package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAPI записывает запросы и отвечает заранее заданными телами.
type stubAPI struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	routes   map[string]stubResponse
}

type stubResponse struct {
	status int
	body   string
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, key)
	s.bodies = append(s.bodies, string(body))

	resp, ok := s.routes[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"no route"}}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	io.WriteString(w, resp.body)
}

func (s *stubAPI) body(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[i]
}

func execute(t *testing.T, api *stubAPI, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	root := &cobra.Command{Use: "pipeworks", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewPipelineCmd(clientFn, outputFn),
		NewRunCmd(clientFn, outputFn),
		NewWorkflowCmd(clientFn, outputFn),
	)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{"a.csv=https://x/a.csv", "b.csv=s3://bucket/b?x=1"})
	require.NoError(t, err)
	assert.Equal(t, []RunInput{
		{Filename: "a.csv", URL: "https://x/a.csv"},
		{Filename: "b.csv", URL: "s3://bucket/b?x=1"},
	}, inputs)

	for _, bad := range []string{"noequals", "=url", "name="} {
		_, err := parseInputs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRunCreate_SendsInputs(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"POST /api/v1/pipelines/p1/runs": {http.StatusCreated, `{"data":{"id":"r1","pipeline_id":"p1","sequence":3}}`},
	}}

	stdout, stderr, err := execute(t, api, false,
		"run", "create", "p1", "--input", "in.csv=https://example.com/in.csv", "--callback", "https://hook.example.com")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Run started: r1")
	assert.Contains(t, stdout, "SEQUENCE")
	assert.Contains(t, stdout, "3")

	var sent CreateRunRequest
	require.NoError(t, json.Unmarshal([]byte(api.body(0)), &sent))
	assert.Equal(t, "https://hook.example.com", sent.CallbackURL)
	assert.Equal(t, []RunInput{{Filename: "in.csv", URL: "https://example.com/in.csv"}}, sent.Inputs)
}

func TestRunState_UppercasesState(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"PUT /api/v1/runs/r1/state": {http.StatusOK, `{"data":{"run_id":"r1","from":"NOT_STARTED","to":"RUNNING"}}`},
	}}

	_, stderr, err := execute(t, api, false, "run", "state", "r1", "running")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"RUNNING"}`, api.body(0))
	assert.Contains(t, stderr, "NOT_STARTED -> RUNNING")
}

func TestRunConsole(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"GET /api/v1/runs/r1": {http.StatusOK, `{"data":{"id":"r1","state":"FAILED","console":{"stdout":"out\n","stderr":"err\n"}}}`},
	}}

	stdout, _, err := execute(t, api, false, "run", "console", "r1")
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout)

	stdout, _, err = execute(t, api, false, "run", "console", "r1", "--stderr")
	require.NoError(t, err)
	assert.Equal(t, "err\n", stdout)
}

func TestRunUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	api := &stubAPI{routes: map[string]stubResponse{
		"POST /api/v1/runs/r1/artifacts": {http.StatusCreated, `{"data":{"id":"a1","name":"result.csv","size":4}}`},
	}}

	_, stderr, err := execute(t, api, false, "run", "upload", "r1", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Artifact uploaded: result.csv (4 bytes)")
	assert.Contains(t, api.body(0), `filename="result.csv"`)
	assert.Contains(t, api.body(0), "a,b")
}

func TestWorkflowShow_JSON(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"GET /api/v1/workflows/w1": {http.StatusOK, `{"data":{"workflow":{"id":"w1","name":"wf"},"nodes":[{"id":"n1","pipeline_id":"p1"},{"id":"n2","pipeline_id":"p2"}],"edges":[{"id":"e1","from_node_id":"n1","to_node_id":"n2"}]}}`},
	}}

	stdout, _, err := execute(t, api, true, "workflow", "show", "w1")
	require.NoError(t, err)

	var g WorkflowGraphResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &g))
	assert.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "n2", g.Edges[0].ToNodeID)
}

func TestWorkflowEdgeCheck(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"POST /api/v1/workflows/w1/edges/check": {http.StatusOK, `{"data":{"would_create_cycle":true}}`},
	}}

	stdout, _, err := execute(t, api, false, "workflow", "edge", "check", "w1", "n2", "n1")
	require.NoError(t, err)
	assert.Equal(t, "edge would create a cycle\n", stdout)
	assert.JSONEq(t, `{"from_node_id":"n2","to_node_id":"n1"}`, api.body(0))
}

func TestAPIErrorIsReturned(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"POST /api/v1/workflows/w1/edges": {http.StatusBadRequest, `{"error":{"code":"GRAPH_ERROR","message":"cyclic dependency"}}`},
	}}

	_, _, err := execute(t, api, false, "workflow", "edge", "add", "w1", "n2", "n1")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "GRAPH_ERROR"), err.Error())
}

func TestPipelineCreate_RequiresFlags(t *testing.T) {
	_, _, err := execute(t, &stubAPI{}, false, "pipeline", "create", "--name", "x")
	assert.Error(t, err)
}

func TestRunShow_Details(t *testing.T) {
	api := &stubAPI{routes: map[string]stubResponse{
		"GET /api/v1/runs/r1": {http.StatusOK, `{"data":{"id":"r1","pipeline_id":"p1","sequence":2,"state":"COMPLETED",
			"states":[{"state":"QUEUED"},{"state":"NOT_STARTED"},{"state":"RUNNING"},{"state":"COMPLETED"}],
			"artifacts":[{"name":"out.csv","size":10,"url":"http://minio/out.csv"}]}}`},
	}}

	stdout, _, err := execute(t, api, false, "run", "show", "r1")
	require.NoError(t, err)

	assert.Contains(t, stdout, "State:")
	assert.Contains(t, stdout, "COMPLETED")
	assert.NotContains(t, stdout, "Callback:")
	assert.Contains(t, stdout, "http://minio/out.csv")
	// Входов нет
	assert.Contains(t, stdout, "Inputs:\n(none)")
}
