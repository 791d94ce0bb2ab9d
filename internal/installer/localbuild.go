package installer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/thep200/codeql-fetcher/internal/resolver"
	"github.com/thep200/codeql-fetcher/pkg/errs"
)

// Các ngôn ngữ thông dịch không cần build command, chỉ cần source-root.
// Ngôn ngữ còn lại để codeql autobuild trong thư mục source.
var interpretedLanguages = map[string]bool{
	"python":     true,
	"javascript": true,
	"ruby":       true,
}

// BuildLocal clone source của repository (shallow, depth 1) và build database
// bằng codeql tại đúng vị trí chuẩn. Bỏ qua nếu database hợp lệ đã tồn tại.
func (i *Installer) BuildLocal(ctx context.Context, repoName, lang string) error {
	codeqlBin := i.Config.Codeql.BinPath
	if codeqlBin == "" {
		return errs.Configf("codeql binary path is not configured; cannot build database locally for %s", repoName)
	}

	_, shortName := resolver.SplitRepoName(repoName)
	sourceDir := filepath.Join(i.Config.Fetcher.OutputDir, "sources", lang, shortName)
	dbDir := filepath.Join(i.Config.Fetcher.OutputDir, "databases", lang, shortName, "codeql_db")

	// Idempotent: database đã tồn tại thì không build lại
	if hasDatabaseMarker(dbDir) {
		i.Logger.Info(ctx, "Database for %s already exists at %s", repoName, dbDir)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(sourceDir), 0o755); err != nil {
		return errs.WrapResource(err, "failed to create source directory for %s", repoName)
	}
	if err := os.MkdirAll(filepath.Dir(dbDir), 0o755); err != nil {
		return errs.WrapResource(err, "failed to create database directory for %s", repoName)
	}

	if pathExists(sourceDir) {
		i.Logger.Warn(ctx, "Directory %s already exists, removing it", sourceDir)
		if err := os.RemoveAll(sourceDir); err != nil {
			return errs.WrapResource(err, "failed to remove existing directory %s", sourceDir)
		}
	}

	repoUrl := fmt.Sprintf("https://github.com/%s.git", repoName)
	i.Logger.Info(ctx, "Cloning %s to %s", repoUrl, sourceDir)
	if err := i.runCmd(ctx, "", "git", "clone", "--depth", "1", repoUrl, sourceDir); err != nil {
		return fmt.Errorf("failed to clone repository %s: %w", repoName, err)
	}

	i.Logger.Info(ctx, "Creating CodeQL database at %s for language %s", dbDir, lang)
	args := []string{"database", "create", dbDir, "--language=" + lang, "--overwrite"}
	if interpretedLanguages[lang] {
		args = append(args, "--source-root", sourceDir)
	} else {
		i.Logger.Warn(ctx, "Attempting autobuild for %s. This may fail if dependencies are missing", lang)
	}

	// Working directory truyền tường minh cho subprocess, không bao giờ chdir
	if err := i.runCmd(ctx, sourceDir, codeqlBin, args...); err != nil {
		return fmt.Errorf("failed to create local CodeQL database for %s: %w", repoName, err)
	}

	i.Logger.Info(ctx, "Database created successfully at %s", dbDir)
	return nil
}

func (i *Installer) runCommand(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, string(output))
	}
	return nil
}
