package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGet(t *testing.T) {
	store := NewMemory("http://unused")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a/b.csv", strings.NewReader("1,2,3"), 5))

	r, err := store.Get(ctx, "a/b.csv")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", string(data))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.PresignedURL(ctx, "missing", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_PresignedURLResolves(t *testing.T) {
	store := NewMemory("")
	srv := httptest.NewServer(store)
	defer srv.Close()
	store.SetBaseURL(srv.URL)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "pipelines/p/runs/r/a/out.csv", strings.NewReader("x"), 1))

	link, err := store.PresignedURL(ctx, "pipelines/p/runs/r/a/out.csv", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, srv.URL+"/pipelines/"))

	resp, err := http.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "x", string(body))
}

func TestMemory_ExpiredLink(t *testing.T) {
	store := NewMemory("")
	srv := httptest.NewServer(store)
	defer srv.Close()
	store.SetBaseURL(srv.URL)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", strings.NewReader("x"), 1))
	link, err := store.PresignedURL(ctx, "k", -time.Hour)
	require.NoError(t, err)

	resp, err := http.Get(link)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
