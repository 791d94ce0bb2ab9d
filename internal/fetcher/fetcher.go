// Gói fetcher là orchestrator của pipeline acquisition: tìm repository,
// resolve database, tải và cài đặt tuần tự từng repository một.
// Song song chỉ xảy ra bên trong một lần tải (chia range), không bao giờ
// giữa các repository.

package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/internal/downloader"
	githubapi "github.com/thep200/codeql-fetcher/internal/github_api"
	"github.com/thep200/codeql-fetcher/internal/installer"
	"github.com/thep200/codeql-fetcher/internal/limiter"
	"github.com/thep200/codeql-fetcher/internal/model"
	"github.com/thep200/codeql-fetcher/internal/resolver"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"github.com/thep200/codeql-fetcher/pkg/kafka"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

// GitHub Search API chỉ trả về tối đa 1000 kết quả cho mỗi truy vấn
const maxSearchResults = 1000

type Fetcher struct {
	Logger    log.Logger
	Config    *cfg.Config
	Resolver  *resolver.Resolver
	Installer *installer.Installer
	Producer  *kafka.Producer

	// OnInstalled được gọi sau mỗi lần cài đặt thành công (cho thống kê)
	OnInstalled func(desc resolver.DatabaseDescriptor, source string)
}

func NewFetcher(logger log.Logger, config *cfg.Config) (*Fetcher, error) {
	caller := githubapi.NewCaller(logger, config)
	governor := limiter.NewGovernor(logger, caller)

	dl, err := downloader.NewDownloader(logger, config, governor)
	if err != nil {
		return nil, err
	}

	res, err := resolver.NewResolver(logger, caller)
	if err != nil {
		return nil, err
	}

	inst, err := installer.NewInstaller(logger, config, dl)
	if err != nil {
		return nil, err
	}

	// Kafka là tùy chọn: không có broker thì bỏ qua việc phát event
	var producer *kafka.Producer
	if len(config.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(config, logger, config.Kafka.Producer.TopicInstall)
		if err != nil {
			return nil, err
		}
	}

	return &Fetcher{
		Logger:    logger,
		Config:    config,
		Resolver:  res,
		Installer: inst,
		Producer:  producer,
	}, nil
}

// FetchSingle resolve và cài đặt database của một repository cụ thể.
// Không có artifact từ xa hoặc tải thất bại thì rơi về build cục bộ.
func (f *Fetcher) FetchSingle(ctx context.Context, repoName, lang string) error {
	if !strings.Contains(repoName, "/") {
		return errs.Configf("repository must be in format 'org/repo': %s", repoName)
	}
	if !resolver.IsSupported(lang) {
		return errs.Configf("unsupported language: %s", lang)
	}

	candidate := resolver.RepositoryCandidate{RepoName: repoName}
	descriptors, err := f.Resolver.ResolveDatabases(ctx, []resolver.RepositoryCandidate{candidate}, lang)
	if err == nil && len(descriptors) > 0 {
		err = f.Installer.Install(ctx, descriptors[0], lang)
		if err == nil {
			f.published(ctx, descriptors[0], lang, "remote")
			return nil
		}
	}

	if err != nil {
		f.Logger.Info(ctx, "Error fetching the remote database (%v), attempting to build it locally", err)
	} else {
		f.Logger.Info(ctx, "No remote database found for %s, attempting to build it locally", repoName)
	}

	if err := f.Installer.BuildLocal(ctx, repoName, lang); err != nil {
		return err
	}

	f.published(ctx, resolver.DatabaseDescriptor{RepoName: repoName}, lang, "local")
	return nil
}

// FetchBulk tìm các repository nhiều sao nhất có database cho ngôn ngữ và cài
// đặt tuần tự tối đa maxRepos database. Tiến độ được checkpoint sau mỗi lần
// cài thành công; lỗi cấu hình dừng cả batch và giữ nguyên checkpoint.
func (f *Fetcher) FetchBulk(ctx context.Context, lang string, maxRepos int) error {
	if !resolver.IsSupported(lang) {
		return errs.Configf("unsupported language: %s", lang)
	}
	if maxRepos <= 0 {
		maxRepos = f.Config.Fetcher.MaxRepos
	}
	if maxRepos <= 0 {
		maxRepos = 100
	}

	checkpointPath := f.Config.Fetcher.CheckpointFile
	if checkpointPath == "" {
		checkpointPath = "repos_db.json"
	}

	if leftover, err := ReadCheckpoint(checkpointPath); err == nil && len(leftover) > 0 {
		f.Logger.Warn(ctx, "Found leftover checkpoint %s with %d entries from a previous run; it will be overwritten",
			checkpointPath, len(leftover))
	}

	f.Logger.Info(ctx, "Fetching up to %d top %s repos with DBs on GitHub", maxRepos, lang)
	descriptors, err := f.collectDescriptors(ctx, lang, maxRepos)
	if err != nil {
		return err
	}

	if err := WriteCheckpoint(checkpointPath, descriptors); err != nil {
		return err
	}

	var failedDescs []resolver.DatabaseDescriptor
	for idx, desc := range descriptors {
		f.Logger.Info(ctx, "Downloading repo %d/%d: %s", idx+1, len(descriptors), desc.RepoName)

		if err := f.Installer.Install(ctx, desc, lang); err != nil {
			// Lỗi cấu hình dừng cả batch; checkpoint giữ nguyên từ lần ghi
			// thành công cuối cùng để operator chạy lại phần còn thiếu
			if errs.IsConfig(err) {
				return err
			}

			failedDescs = append(failedDescs, desc)
			f.Logger.Error(ctx, "Failed to install database for %s: %v", desc.RepoName, err)
			continue
		}

		f.published(ctx, desc, lang, "remote")

		// Checkpoint = các repo đã fail trước đó + phần đuôi chưa xử lý,
		// để không repo nào rơi khỏi checkpoint chỉ vì fail sớm
		pending := append(append([]resolver.DatabaseDescriptor{}, failedDescs...), descriptors[idx+1:]...)
		if err := WriteCheckpoint(checkpointPath, pending); err != nil {
			return err
		}
	}

	if len(failedDescs) > 0 {
		if err := WriteCheckpoint(checkpointPath, failedDescs); err != nil {
			return err
		}
		f.Logger.Warn(ctx, "%d of %d repositories failed; checkpoint %s holds them for a re-run",
			len(failedDescs), len(descriptors), checkpointPath)
		return nil
	}

	if err := os.Remove(checkpointPath); err != nil && !os.IsNotExist(err) {
		f.Logger.Warn(ctx, "Failed to delete checkpoint file %s: %v", checkpointPath, err)
	}
	return nil
}

// collectDescriptors phân trang search cho đến khi gom đủ maxRepos descriptor
func (f *Fetcher) collectDescriptors(ctx context.Context, lang string, maxRepos int) ([]resolver.DatabaseDescriptor, error) {
	perPage := f.Config.GithubApi.PerPage
	if perPage <= 0 {
		perPage = 30
	}
	maxPages := maxSearchResults / perPage

	var descriptors []resolver.DatabaseDescriptor
	for page := 1; len(descriptors) < maxRepos && page <= maxPages; page++ {
		candidates, err := f.Resolver.Search(ctx, lang, page)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}

		pageDescriptors, err := f.Resolver.ResolveDatabases(ctx, candidates, lang)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, pageDescriptors...)
	}

	if len(descriptors) > maxRepos {
		descriptors = descriptors[:maxRepos]
	}
	return descriptors, nil
}

// published báo một database đã cài xong: cập nhật thống kê và phát event
func (f *Fetcher) published(ctx context.Context, desc resolver.DatabaseDescriptor, lang, source string) {
	if f.OnInstalled != nil {
		f.OnInstalled(desc, source)
	}

	if f.Producer == nil {
		return
	}

	_, shortName := resolver.SplitRepoName(desc.RepoName)
	dbPath := filepath.Join(f.Config.Fetcher.OutputDir, "databases", lang, shortName, shortName)
	if source == "local" {
		dbPath = filepath.Join(f.Config.Fetcher.OutputDir, "databases", lang, shortName, "codeql_db")
	}

	msg := model.InstallMessage{
		RepoName:    desc.RepoName,
		Language:    lang,
		Stars:       desc.Stars,
		Forks:       desc.Forks,
		SizeBytes:   desc.Size,
		Path:        dbPath,
		Source:      source,
		InstalledAt: time.Now(),
	}

	if err := f.Producer.Publish(ctx, "db_installed", msg); err != nil {
		f.Logger.Warn(ctx, "Failed to publish install event for %s: %v", desc.RepoName, err)
	}
}
