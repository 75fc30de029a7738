package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory — хранилище в памяти процесса.
//
// Memory также реализует http.Handler: ссылки PresignedURL указывают на
// baseURL, и сервер, обслуживающий Memory, отдаёт по ним содержимое.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
	now     func() time.Time
}

// NewMemory создаёт хранилище; baseURL — адрес, на котором обслуживается Memory.
func NewMemory(baseURL string) *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// SetBaseURL меняет адрес для ссылок (например, после старта httptest.Server).
func (m *Memory) SetBaseURL(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURL = strings.TrimRight(baseURL, "/")
}

// Put сохраняет объект.
func (m *Memory) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// Get возвращает копию объекта.
func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// PresignedURL возвращает ссылку вида {baseURL}/{key}?expires={unix}.
func (m *Memory) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	q := url.Values{"expires": {strconv.FormatInt(m.now().Add(ttl).Unix(), 10)}}
	return m.baseURL + "/" + key + "?" + q.Encode(), nil
}

// Len возвращает количество объектов.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// ServeHTTP отдаёт объект по ссылке PresignedURL.
func (m *Memory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if exp := r.URL.Query().Get("expires"); exp != "" {
		unix, err := strconv.ParseInt(exp, 10, 64)
		if err != nil || m.now().Unix() > unix {
			http.Error(w, "link expired", http.StatusForbidden)
			return
		}
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
