package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

func makeZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	buf := bytes.Buffer{}
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestDownloader(t *testing.T, token string) *Downloader {
	t.Helper()

	logger, _ := log.NewCslLogger()
	config := &cfg.Config{
		GithubApi: cfg.GithubApi{AccessToken: token},
		Fetcher: cfg.Fetcher{
			OutputDir:          t.TempDir(),
			MaxAttempts:        3,
			DownloadThreads:    3,
			DownloadTimeoutSec: 10,
		},
	}

	d, err := NewDownloader(logger, config, nil)
	require.NoError(t, err)
	d.sleep = func(time.Duration) {}
	return d
}

// rangeRecorder ghi lại Range header của từng request để kiểm tra resume
type rangeRecorder struct {
	mu     sync.Mutex
	ranges []string
}

func (r *rangeRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges = append(r.ranges, req.Header.Get("Range"))
}

func (r *rangeRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.ranges...)
}

func TestDownloadFresh(t *testing.T) {
	content := makeZipBytes(t, map[string]string{"a.txt": "hello"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newTestDownloader(t, "")
	dest := filepath.Join(t.TempDir(), "db.zip")

	err := d.Download(context.Background(), server.URL, dest, 3, false)

	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadResumesFromValidArchive(t *testing.T) {
	prefix := makeZipBytes(t, map[string]string{"a.txt": "first part"})
	full := append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xAB}, 4096)...)

	recorder := &rangeRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r)
		http.ServeContent(w, r, "db.zip", time.Now(), bytes.NewReader(full))
	}))
	defer server.Close()

	d := newTestDownloader(t, "")
	dest := filepath.Join(t.TempDir(), "db.zip")
	require.NoError(t, os.WriteFile(dest, prefix, 0o644))

	err := d.Download(context.Background(), server.URL, dest, 3, false)

	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, full, got)

	ranges := recorder.all()
	require.Len(t, ranges, 1)
	assert.Equal(t, fmt.Sprintf("bytes=%d-", len(prefix)), ranges[0])
}

func TestDownloadDiscardsCorruptedPartial(t *testing.T) {
	content := makeZipBytes(t, map[string]string{"a.txt": "fresh"})

	recorder := &rangeRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r)
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newTestDownloader(t, "")
	dest := filepath.Join(t.TempDir(), "db.zip")
	require.NoError(t, os.WriteFile(dest, []byte("not a zip at all"), 0o644))

	err := d.Download(context.Background(), server.URL, dest, 3, false)

	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// File cục bộ hỏng thì không được gửi Range header
	ranges := recorder.all()
	require.Len(t, ranges, 1)
	assert.Empty(t, ranges[0])
}

func TestDownloadRetriesFullAfter416(t *testing.T) {
	existing := makeZipBytes(t, map[string]string{"a.txt": "stale"})
	content := makeZipBytes(t, map[string]string{"b.txt": "replaced on server"})

	recorder := &rangeRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.record(r)
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newTestDownloader(t, "")
	dest := filepath.Join(t.TempDir(), "db.zip")
	require.NoError(t, os.WriteFile(dest, existing, 0o644))

	err := d.Download(context.Background(), server.URL, dest, 3, false)

	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	ranges := recorder.all()
	require.Len(t, ranges, 2)
	assert.NotEmpty(t, ranges[0])
	assert.Empty(t, ranges[1])
}

func TestDownloadClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := newTestDownloader(t, "")
	dest := filepath.Join(t.TempDir(), "db.zip")

	err := d.Download(context.Background(), server.URL, dest, 5, false)

	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.Equal(t, 1, calls)
}

func TestDownloadExhaustedRetriesAreTransient(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := newTestDownloader(t, "")
	dest := filepath.Join(t.TempDir(), "db.zip")

	err := d.Download(context.Background(), server.URL, dest, 3, false)

	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestDownloadSendsToken(t *testing.T) {
	content := makeZipBytes(t, map[string]string{"a.txt": "x"})
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write(content)
	}))
	defer server.Close()

	d := newTestDownloader(t, "ghp_secret")
	dest := filepath.Join(t.TempDir(), "db.zip")

	require.NoError(t, d.Download(context.Background(), server.URL, dest, 3, false))
	assert.Equal(t, "token ghp_secret", auth)
}

func TestDownloadSurvivesBodyStreamingLongerThanTimeout(t *testing.T) {
	// Body được stream lâu hơn timeout nhưng dữ liệu vẫn chảy liên tục;
	// timeout chỉ được phép chặn kết nối và response header
	content := makeZipBytes(t, map[string]string{"big.dat": string(bytes.Repeat([]byte("payload "), 8192))})
	chunk := len(content)/10 + 1

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for off := 0; off < len(content); off += chunk {
			end := off + chunk
			if end > len(content) {
				end = len(content)
			}
			_, _ = w.Write(content[off:end])
			flusher.Flush()
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer server.Close()

	logger, _ := log.NewCslLogger()
	config := &cfg.Config{
		Fetcher: cfg.Fetcher{
			OutputDir:          t.TempDir(),
			MaxAttempts:        1,
			DownloadTimeoutSec: 1,
		},
	}
	d, err := NewDownloader(logger, config, nil)
	require.NoError(t, err)
	d.sleep = func(time.Duration) {}

	dest := filepath.Join(t.TempDir(), "db.zip")
	err = d.Download(context.Background(), server.URL, dest, 1, false)

	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 8*time.Second, backoffDelay(3))
	assert.Equal(t, 60*time.Second, backoffDelay(6))
	assert.Equal(t, 60*time.Second, backoffDelay(20))
}

func TestValidateZip(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.zip")
	require.NoError(t, os.WriteFile(valid, makeZipBytes(t, map[string]string{"a.txt": "ok"}), 0o644))
	assert.NoError(t, ValidateZip(valid))

	corrupt := filepath.Join(dir, "corrupt.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0o644))
	assert.Error(t, ValidateZip(corrupt))

	truncated := filepath.Join(dir, "truncated.zip")
	data := makeZipBytes(t, map[string]string{"a.txt": "will be cut"})
	require.NoError(t, os.WriteFile(truncated, data[:len(data)-10], 0o644))
	assert.Error(t, ValidateZip(truncated))
}
