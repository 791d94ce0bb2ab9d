package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thep200/codeql-fetcher/internal/resolver"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"golang.org/x/sync/errgroup"
)

// FetchArchive tải artifact của một repository vào thư mục staging
// output/zip_dbs/<lang>/<repo>.zip và trả về đường dẫn file.
//
// Có token thì dùng đường một luồng có resume (token ràng buộc mỗi request
// vào quota đã xác thực). Không có token thì hỏi governor trước rồi chia
// artifact thành nhiều range tải song song.
func (d *Downloader) FetchArchive(ctx context.Context, url, repoName, lang string) (string, error) {
	destDir := filepath.Join(d.Config.Fetcher.OutputDir, "zip_dbs", lang)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errs.WrapResource(err, "failed to create download directory %s", destDir)
	}

	_, shortName := resolver.SplitRepoName(repoName)
	dest := filepath.Join(destDir, shortName+".zip")

	maxAttempts := d.Config.Fetcher.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	if d.Config.GithubApi.AccessToken != "" {
		if err := d.Download(ctx, url, dest, maxAttempts, false); err != nil {
			return "", err
		}
		return dest, nil
	}

	threads := d.Config.Fetcher.DownloadThreads
	if threads <= 0 {
		threads = 2
	}

	if d.Governor != nil {
		if err := d.Governor.Throttle(ctx, threads); err != nil {
			return "", err
		}
	}

	if err := d.downloadSegmented(ctx, url, dest, threads, maxAttempts); err != nil {
		return "", err
	}
	return dest, nil
}

// downloadSegmented chia artifact thành threads range rời nhau và tải song song.
// Server không hỗ trợ range hoặc không biết kích thước thì rơi về một luồng.
func (d *Downloader) downloadSegmented(ctx context.Context, url, dest string, threads, maxAttempts int) error {
	total, ok := d.probeSize(ctx, url)
	if !ok || total <= 0 || threads <= 1 {
		return d.Download(ctx, url, dest, maxAttempts, true)
	}

	partSize := total / int64(threads)
	parts := make([]string, threads)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		start := int64(i) * partSize
		end := start + partSize - 1
		if i == threads-1 {
			end = total - 1
		}

		part := fmt.Sprintf("%s.part%d", dest, i)
		parts[i] = part

		g.Go(func() error {
			return d.downloadRange(gctx, url, part, start, end)
		})
	}

	if err := g.Wait(); err != nil {
		removeAll(parts)
		return err
	}

	if err := concatParts(dest, parts); err != nil {
		removeAll(parts)
		return err
	}

	d.Logger.Info(ctx, "File downloaded successfully as %s (%d segments)", dest, threads)
	return nil
}

// probeSize hỏi server một byte đầu tiên để lấy tổng kích thước artifact.
// ok=false nghĩa là server không phục vụ range request.
func (d *Downloader) probeSize(ctx context.Context, url string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("Accept", "application/zip")
	req.Header.Set("Range", "bytes=0-0")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusPartialContent {
		return 0, false
	}

	// Content-Range: bytes 0-0/12345
	contentRange := resp.Header.Get("Content-Range")
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 {
		return 0, false
	}

	total, err := strconv.ParseInt(contentRange[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// downloadRange tải một đoạn [start, end] vào part file, retry tối đa 3 lần
func (d *Downloader) downloadRange(ctx context.Context, url, part string, start, end int64) error {
	const rangeAttempts = 3

	var lastErr error
	for attempt := 1; attempt <= rangeAttempts; attempt++ {
		if attempt > 1 {
			d.sleep(backoffDelay(attempt - 1))
		}

		lastErr = d.downloadRangeOnce(ctx, url, part, start, end)
		if lastErr == nil {
			return nil
		}
		if errs.IsConfig(lastErr) || errs.IsResource(lastErr) {
			return lastErr
		}
	}

	return errs.WrapTransient(lastErr, "failed to download range %d-%d of %s", start, end, url)
}

func (d *Downloader) downloadRangeOnce(ctx context.Context, url, part string, start, end int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/zip")
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return errs.Configf("GitHub returned %d while downloading %s", resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d for range request to %s", resp.StatusCode, url)
	}

	file, err := os.Create(part)
	if err != nil {
		return errs.WrapResource(err, "failed to create part file %s", part)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return fmt.Errorf("range download interrupted: %w", err)
	}
	return nil
}

// concatParts ghép các part file theo thứ tự thành file đích rồi xóa part
func concatParts(dest string, parts []string) error {
	out, err := os.Create(dest)
	if err != nil {
		return errs.WrapResource(err, "failed to create %s", dest)
	}
	defer out.Close()

	for _, part := range parts {
		in, err := os.Open(part)
		if err != nil {
			return errs.WrapResource(err, "failed to open part file %s", part)
		}

		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return errs.WrapResource(err, "failed to assemble %s", dest)
		}

		if err := os.Remove(part); err != nil {
			return errs.WrapResource(err, "failed to remove part file %s", part)
		}
	}

	return nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
