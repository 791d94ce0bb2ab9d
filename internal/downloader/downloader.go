// Gói downloader tải artifact database về đĩa.
//
// Đường tải một luồng hỗ trợ resume: nếu file đích đã tồn tại và là một
// archive hợp lệ thì chỉ tải phần còn thiếu bằng Range request. Lỗi mạng được
// retry với exponential backoff; 4xx là lỗi cấu hình và không bao giờ retry.
// Khi không có token, một artifact lớn được chia thành nhiều range tải song
// song (xem fetch.go).

package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/internal/limiter"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

// progressInterval giới hạn tần suất báo tiến độ (tối đa 10 lần mỗi giây)
const progressInterval = 100 * time.Millisecond

const copyChunkSize = 32 * 1024

type Downloader struct {
	Logger   log.Logger
	Config   *cfg.Config
	Governor *limiter.Governor
	client   *http.Client
	sleep    func(time.Duration)
}

func NewDownloader(logger log.Logger, config *cfg.Config, governor *limiter.Governor) (*Downloader, error) {
	timeout := time.Duration(config.Fetcher.DownloadTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	// Timeout chỉ giới hạn việc kết nối và chờ response header. Không đặt
	// Client.Timeout: nó tính cả thời gian stream body nên một artifact lớn
	// đang tải khỏe mạnh cũng sẽ bị cắt ngang giữa chừng.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   30 * time.Second,
	}

	return &Downloader{
		Logger:   logger,
		Config:   config,
		Governor: governor,
		client:   &http.Client{Transport: transport},
		sleep:    time.Sleep,
	}, nil
}

// rangeChangedError báo hiệu server trả về 416: artifact đã thay đổi phía
// server nên lần thử tiếp theo phải tải lại từ đầu.
type rangeChangedError struct {
	url string
}

func (e *rangeChangedError) Error() string {
	return "range not satisfiable for " + e.url + " - file may have changed on server"
}

// backoffDelay trả về thời gian chờ cho lần thử attempt: min(2^attempt, 60) giây
func backoffDelay(attempt int) time.Duration {
	if attempt > 6 {
		return 60 * time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}

// Download tải url về dest với tối đa maxAttempts lần thử.
// forceFull bỏ qua resume và tải lại từ đầu.
func (d *Downloader) Download(ctx context.Context, url, dest string, maxAttempts int, forceFull bool) error {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.downloadOnce(ctx, url, dest, forceFull)
		if err == nil {
			return nil
		}

		// Lỗi cấu hình và lỗi filesystem không retry được
		if errs.IsConfig(err) || errs.IsResource(err) {
			return err
		}

		// 416: artifact đã thay đổi, lần sau tải lại từ đầu
		var rce *rangeChangedError
		if errors.As(err, &rce) {
			d.Logger.Warn(ctx, "Received 416 (Range Not Satisfiable) for %s - will retry with a full download", url)
			forceFull = true
		}

		if attempt == maxAttempts {
			return errs.WrapTransient(err, "failed to download %s after %d attempts", url, maxAttempts)
		}

		delay := backoffDelay(attempt)
		d.Logger.Warn(ctx, "Download attempt %d/%d failed: %v. Retrying in %.1f seconds",
			attempt, maxAttempts, err, delay.Seconds())
		d.sleep(delay)
	}

	return nil
}

func (d *Downloader) downloadOnce(ctx context.Context, url, dest string, forceFull bool) error {
	var offset int64
	if !forceFull {
		if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
			// Chỉ resume khi file hiện có là một archive hợp lệ
			if err := ValidateZip(dest); err != nil {
				d.Logger.Warn(ctx, "Existing file %s is corrupted. Deleting and starting fresh", dest)
				if rmErr := os.Remove(dest); rmErr != nil {
					return errs.WrapResource(rmErr, "failed to delete corrupted file %s", dest)
				}
			} else {
				offset = fi.Size()
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/zip")
	if d.Config.GithubApi.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", d.Config.GithubApi.AccessToken))
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// Lỗi mạng: vòng lặp bên ngoài sẽ retry
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return &rangeChangedError{url: url}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return errs.Configf("GitHub returned %d while downloading %s. Please check your GitHub token / permissions",
			resp.StatusCode, url)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d while downloading %s", resp.StatusCode, url)
	}

	// Server bỏ qua Range header và trả về toàn bộ body
	if offset > 0 && resp.StatusCode == http.StatusOK {
		offset = 0
	}

	total := resp.ContentLength
	if total >= 0 {
		total += offset
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return errs.WrapResource(err, "failed to open %s for writing", dest)
	}
	defer file.Close()

	return d.copyWithProgress(ctx, file, resp.Body, offset, total)
}

// copyWithProgress stream body ra đĩa theo từng chunk, báo tiến độ tối đa 10 lần/giây
func (d *Downloader) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, offset, total int64) error {
	downloaded := offset
	startTime := time.Now()
	lastUpdate := startTime
	buf := make([]byte, copyChunkSize)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return errs.WrapResource(writeErr, "failed to write downloaded content")
			}
			downloaded += int64(n)

			now := time.Now()
			if now.Sub(lastUpdate) >= progressInterval || (total > 0 && downloaded == total) {
				d.reportProgress(ctx, downloaded, total, now.Sub(startTime))
				lastUpdate = now
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("download stream interrupted: %w", readErr)
		}
	}
}

func (d *Downloader) reportProgress(ctx context.Context, downloaded, total int64, elapsed time.Duration) {
	speed := 0.0
	if elapsed > 0 {
		speed = float64(downloaded) / elapsed.Seconds() / 1e6
	}

	if total > 0 {
		percent := float64(downloaded) / float64(total) * 100
		d.Logger.Debug(ctx, "Downloading: %.1f%% | %.2f/%.2f MB | %.2f MB/s",
			percent, float64(downloaded)/1e6, float64(total)/1e6, speed)
	} else {
		d.Logger.Debug(ctx, "Downloading: %.2f MB | %.2f MB/s", float64(downloaded)/1e6, speed)
	}
}
