package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/net/http2"
)

// MaxArtifactSize bounds how many bytes a source may return.
const MaxArtifactSize = 256 << 20

// DefaultSettle is how long a waited-for file must stay unchanged before it is read.
const DefaultSettle = 50 * time.Millisecond

// Source supplies the module artifact.
type Source interface {
	// Fetch returns the complete artifact. It may block until ctx is done.
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// BytesSource serves an in-memory artifact.
type BytesSource struct {
	Name string
	Data []byte
}

func (s BytesSource) Fetch(_ context.Context) ([]byte, error) {
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("empty artifact")
	}
	return s.Data, nil
}

func (s BytesSource) String() string {
	if s.Name != "" {
		return "bytes:" + s.Name
	}
	return "bytes"
}

// FileSource reads the artifact from the local filesystem.
type FileSource struct {
	Path string

	// Wait blocks Fetch until the file appears instead of failing.
	Wait bool

	// Settle is the quiet period after the last write before reading a
	// file that appeared while waiting. Defaults to DefaultSettle.
	Settle time.Duration
}

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := readArtifact(s.Path)
	if err == nil || !s.Wait || !stderrors.Is(err, fs.ErrNotExist) {
		return data, err
	}

	Logger().Info("waiting for module artifact")
	if err := s.waitForFile(ctx); err != nil {
		return nil, err
	}
	return readArtifact(s.Path)
}

func (s FileSource) String() string {
	return "file:" + s.Path
}

// waitForFile watches the parent directory until Path is created and has
// not been written to for the settle period.
func (s FileSource) waitForFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.Path)
	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	settle := s.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	// The file may have appeared between the first read and Add.
	var quiet <-chan time.Time
	if _, err := os.Stat(target); err == nil {
		quiet = time.After(settle)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watch %s: watcher closed", dir)
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				quiet = time.After(settle)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watch %s: watcher closed", dir)
			}
			return fmt.Errorf("watch %s: %w", dir, err)

		case <-quiet:
			return nil
		}
	}
}

func readArtifact(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxArtifactSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, MaxArtifactSize)
	}
	return os.ReadFile(path)
}

// HTTPSource downloads the artifact with a GET request.
type HTTPSource struct {
	// Client defaults to NewHTTPClient(DefaultHTTPTimeout).
	Client *http.Client
	URL    string
}

// DefaultHTTPTimeout bounds a whole artifact download.
const DefaultHTTPTimeout = 2 * time.Minute

func (s HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		c, err := NewHTTPClient(DefaultHTTPTimeout)
		if err != nil {
			return nil, err
		}
		client = c
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/wasm, application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > MaxArtifactSize {
		return nil, fmt.Errorf("artifact exceeds %d bytes", MaxArtifactSize)
	}
	return data, nil
}

// String returns the URL unchanged; its scheme already names the source
// kind, like the file: and bytes: prefixes of the other sources.
func (s HTTPSource) String() string {
	return s.URL
}

// NewHTTPClient returns a client that negotiates HTTP/2 over TLS.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
