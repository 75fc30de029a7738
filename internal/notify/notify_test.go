package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var ev Event
		if err := json.NewDecoder(req.Body).Decode(&ev); err == nil {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
		w.WriteHeader(status)
	}
}

func TestSend_Body(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	id := uuid.New()
	err := New(Config{}).Send(context.Background(), srv.URL, Event{RunID: id, State: domain.RunStateRunning})
	require.NoError(t, err)
	assert.Equal(t, id.String(), raw["pipeline_run_uuid"])
	assert.Equal(t, "RUNNING", raw["state"])
}

func TestSend_Non2xx(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusInternalServerError))
	defer srv.Close()

	err := New(Config{}).Send(context.Background(), srv.URL, Event{RunID: uuid.New(), State: domain.RunStateFailed})
	assert.Error(t, err)
}

func TestSend_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	start := time.Now()
	err := New(Config{Timeout: 50 * time.Millisecond}).Send(context.Background(), srv.URL, Event{RunID: uuid.New()})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNotify_OrderedAndSurvivesCancel(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	n := New(Config{})
	n.Notify(ctx, srv.URL, []Event{
		{RunID: id, State: domain.RunStateQueued},
		{RunID: id, State: domain.RunStateNotStarted},
	})
	cancel()
	n.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	assert.Equal(t, domain.RunStateQueued, rec.events[0].State)
	assert.Equal(t, domain.RunStateNotStarted, rec.events[1].State)
}

func TestNotify_UnreachableIsSwallowed(t *testing.T) {
	n := New(Config{Timeout: 100 * time.Millisecond})
	n.Notify(context.Background(), "http://127.0.0.1:1/cb", []Event{{RunID: uuid.New(), State: domain.RunStateFailed}})
	n.Wait()

	// Пустой URL — ничего не отправляется
	n.Notify(context.Background(), "", []Event{{RunID: uuid.New()}})
	n.Wait()
}

func TestNotify_OrderAcrossCallsWithSlowReceiver(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		if ev.State == domain.RunStateRunning {
			time.Sleep(200 * time.Millisecond)
		}
		rec.mu.Lock()
		rec.events = append(rec.events, ev)
		rec.mu.Unlock()
	}))
	defer srv.Close()

	id := uuid.New()
	n := New(Config{Timeout: 2 * time.Second})
	n.Notify(context.Background(), srv.URL, []Event{{RunID: id, State: domain.RunStateRunning}})
	time.Sleep(10 * time.Millisecond)
	n.Notify(context.Background(), srv.URL, []Event{{RunID: id, State: domain.RunStateCompleted}})
	n.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	assert.Equal(t, domain.RunStateRunning, rec.events[0].State)
	assert.Equal(t, domain.RunStateCompleted, rec.events[1].State)
}

func TestNotify_SlowReceiverDoesNotBlockOthers(t *testing.T) {
	released := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-released:
		case <-time.After(2 * time.Second):
		}
		record("slow")
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record("fast")
		close(released)
	}))
	defer fast.Close()

	n := New(Config{Timeout: 5 * time.Second})
	n.Notify(context.Background(), slow.URL, []Event{{RunID: uuid.New(), State: domain.RunStateRunning}})
	n.Notify(context.Background(), fast.URL, []Event{{RunID: uuid.New(), State: domain.RunStateRunning}})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"fast", "slow"}, order)
}
