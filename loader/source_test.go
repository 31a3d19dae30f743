package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/tickhost/internal/wasmtest"
)

func TestBytesSource(t *testing.T) {
	ctx := context.Background()

	data, err := BytesSource{Name: "app", Data: []byte{1, 2}}.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)

	_, err = BytesSource{}.Fetch(ctx)
	assert.Error(t, err)

	assert.Equal(t, "bytes:app", BytesSource{Name: "app"}.String())
	assert.Equal(t, "bytes", BytesSource{}.String())
}

func TestFileSource_Read(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.wasm")
	require.NoError(t, os.WriteFile(path, wasmtest.SyncApp(1), 0o644))

	data, err := FileSource{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wasmtest.SyncApp(1), data)
	assert.Equal(t, "file:"+path, FileSource{Path: path}.String())
}

func TestFileSource_Missing(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "nope.wasm")}.Fetch(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileSource_Directory(t *testing.T) {
	_, err := FileSource{Path: t.TempDir()}.Fetch(context.Background())
	assert.ErrorContains(t, err, "is a directory")
}

func TestFileSource_WaitForCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.wasm")
	want := wasmtest.SyncApp(3)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, want, 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := FileSource{Path: path, Wait: true, Settle: 10 * time.Millisecond}.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestFileSource_WaitCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := FileSource{Path: filepath.Join(t.TempDir(), "app.wasm"), Wait: true}.Fetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPSource(t *testing.T) {
	want := wasmtest.SyncApp(5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app.wasm":
			w.Header().Set("Content-Type", "application/wasm")
			_, _ = w.Write(want)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		data, err := HTTPSource{URL: srv.URL + "/app.wasm"}.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, data)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := HTTPSource{URL: srv.URL + "/missing.wasm", Client: srv.Client()}.Fetch(ctx)
		assert.ErrorContains(t, err, "404")
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := HTTPSource{URL: "://bad"}.Fetch(ctx)
		assert.Error(t, err)
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "https://example.com/app.wasm", HTTPSource{URL: "https://example.com/app.wasm"}.String())
		assert.True(t, strings.HasPrefix(HTTPSource{URL: srv.URL}.String(), "http:"))
	})
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.Timeout)
	assert.NotNil(t, c.Transport)
}
