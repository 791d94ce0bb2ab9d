// Gói installer đưa một artifact đã tải về layout chuẩn trên đĩa:
// output/databases/<lang>/<repo>/<repo>. Archive hỏng được phát hiện trước
// khi giải nén và được tải lại thay vì giải nén dở dang. Khi không có
// artifact từ xa, installer clone source và build database bằng codeql
// (xem localbuild.go).

package installer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/internal/downloader"
	"github.com/thep200/codeql-fetcher/internal/resolver"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

// databaseMarker là file đánh dấu một database hợp lệ
const databaseMarker = "codeql-database.yml"

const renameAttempts = 3

type Installer struct {
	Logger     log.Logger
	Config     *cfg.Config
	Downloader *downloader.Downloader
	sleep      func(time.Duration)
	runCmd     func(ctx context.Context, dir, name string, args ...string) error
}

func NewInstaller(logger log.Logger, config *cfg.Config, dl *downloader.Downloader) (*Installer, error) {
	i := &Installer{
		Logger:     logger,
		Config:     config,
		Downloader: dl,
		sleep:      time.Sleep,
	}
	i.runCmd = i.runCommand
	return i, nil
}

// Install tải artifact của descriptor, giải nén và chuẩn hóa layout.
// Chạy lại trên một database đã cài là no-op.
func (i *Installer) Install(ctx context.Context, desc resolver.DatabaseDescriptor, lang string) error {
	dbRoot := filepath.Join(i.Config.Fetcher.OutputDir, "databases", lang)
	if err := os.MkdirAll(dbRoot, 0o755); err != nil {
		return errs.WrapResource(err, "failed to create database directory %s", dbRoot)
	}

	_, shortName := resolver.SplitRepoName(desc.RepoName)
	dbPath := filepath.Join(dbRoot, shortName)

	if hasDatabaseMarker(filepath.Join(dbPath, shortName)) {
		i.Logger.Info(ctx, "Database for %s already installed at %s", desc.RepoName, dbPath)
		return nil
	}

	i.Logger.Info(ctx, "Downloading repo %s", desc.RepoName)
	zipPath, err := i.Downloader.FetchArchive(ctx, desc.DbUrl, desc.RepoName, lang)
	if err != nil {
		return err
	}

	// Kiểm tra toàn vẹn trước khi giải nén; archive hỏng thì tải lại một lần
	if err := downloader.ValidateZip(zipPath); err != nil {
		i.Logger.Warn(ctx, "Downloaded archive %s is corrupted, re-downloading: %v", zipPath, err)
		if rmErr := os.Remove(zipPath); rmErr != nil {
			return errs.WrapResource(rmErr, "failed to delete corrupted archive %s", zipPath)
		}

		maxAttempts := i.Config.Fetcher.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 5
		}
		if err := i.Downloader.Download(ctx, desc.DbUrl, zipPath, maxAttempts, true); err != nil {
			return err
		}
		if err := downloader.ValidateZip(zipPath); err != nil {
			return errs.WrapTransient(err, "archive for %s is corrupted after re-download", desc.RepoName)
		}
	}

	if err := extractZip(zipPath, dbPath); err != nil {
		return err
	}

	// Chờ filesystem sync trước khi đổi tên
	i.sleep(time.Second)

	return i.normalize(ctx, dbPath, shortName, lang)
}

// normalize đổi tên thư mục gốc của artifact (codeql_db hoặc mã ngôn ngữ)
// thành tên repo để mọi database có cùng layout bất kể quy ước nguồn.
func (i *Installer) normalize(ctx context.Context, dbPath, shortName, lang string) error {
	targetPath := filepath.Join(dbPath, shortName)

	var sourcePath string
	if _, err := os.Stat(filepath.Join(dbPath, "codeql_db")); err == nil {
		sourcePath = filepath.Join(dbPath, "codeql_db")
	} else if _, err := os.Stat(filepath.Join(dbPath, resolver.GithubLang(lang))); err == nil {
		sourcePath = filepath.Join(dbPath, resolver.GithubLang(lang))
	}

	if sourcePath == "" || pathExists(targetPath) {
		return nil
	}

	// Retry với delay tăng dần vì một số nền tảng có thể lock thư mục tạm thời
	var lastErr error
	for attempt := 1; attempt <= renameAttempts; attempt++ {
		i.sleep(time.Duration(attempt) * 500 * time.Millisecond)
		lastErr = os.Rename(sourcePath, targetPath)
		if lastErr == nil {
			return nil
		}
	}

	return errs.WrapTransient(lastErr,
		"could not rename %s to %s. The folder may be locked by another process", sourcePath, targetPath)
}

func extractZip(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return errs.WrapTransient(err, "invalid or corrupted ZIP file %s", zipPath)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errs.WrapResource(err, "failed to create extraction directory %s", destDir)
	}

	cleanDest := filepath.Clean(destDir)
	for _, entry := range reader.File {
		path := filepath.Join(destDir, entry.Name)
		if !strings.HasPrefix(path, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path %q in archive %s", entry.Name, zipPath)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return errs.WrapResource(err, "failed to create directory %s", path)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errs.WrapResource(err, "failed to create directory %s", filepath.Dir(path))
		}

		if err := extractEntry(entry, path); err != nil {
			return err
		}
	}

	return nil
}

func extractEntry(entry *zip.File, path string) error {
	rc, err := entry.Open()
	if err != nil {
		return errs.WrapTransient(err, "failed to read archive entry %s", entry.Name)
	}
	defer rc.Close()

	mode := entry.Mode()
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errs.WrapResource(err, "failed to create %s", path)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return errs.WrapResource(err, "failed to extract %s", path)
	}
	return nil
}

func hasDatabaseMarker(dbDir string) bool {
	_, err := os.Stat(filepath.Join(dbDir, databaseMarker))
	return err == nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
