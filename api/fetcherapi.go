// Package api cung cấp API public để tương tác với CodeQL database fetcher
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/internal/fetcher"
	"github.com/thep200/codeql-fetcher/internal/resolver"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

// FetchStats chứa thống kê về quá trình acquisition
type FetchStats struct {
	Mode         string    `json:"mode"`
	Language     string    `json:"language"`
	IsRunning    bool      `json:"isRunning"`
	StartTime    time.Time `json:"startTime"`
	Duration     string    `json:"duration"`
	DbsInstalled int       `json:"dbsInstalled"`
	LocalBuilds  int       `json:"localBuilds"`
	LastError    string    `json:"lastError"`
}

// FetcherAPI cung cấp các API để tương tác với fetcher
type FetcherAPI struct {
	ctx     context.Context
	config  *cfg.Config
	logger  log.Logger
	fetcher *fetcher.Fetcher

	statsMu sync.RWMutex
	stats   *FetchStats
	running bool
}

// NewFetcherAPI tạo một instance mới của FetcherAPI
func NewFetcherAPI() *FetcherAPI {
	return &FetcherAPI{
		stats: &FetchStats{},
	}
}

// Initialize khởi tạo các thành phần cần thiết cho fetcher
func (a *FetcherAPI) Initialize(ctx context.Context) error {
	a.ctx = ctx

	var err error

	// Load configuration
	loader, _ := cfg.NewViperLoader()
	a.config, err = loader.Load()
	if err != nil {
		return err
	}

	// Set up logger
	a.logger, err = log.NewCslLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Set up fetcher
	a.fetcher, err = fetcher.NewFetcher(a.logger, a.config)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	a.fetcher.OnInstalled = func(desc resolver.DatabaseDescriptor, source string) {
		a.updateStats(func(stats *FetchStats) {
			if source == "local" {
				stats.LocalBuilds++
			}
			stats.DbsInstalled++
		})
	}

	return nil
}

// FetchSingle tải database của một repository cụ thể
func (a *FetcherAPI) FetchSingle(repoName, lang string) error {
	return a.run("single", lang, func() error {
		return a.fetcher.FetchSingle(a.ctx, repoName, lang)
	})
}

// FetchBulk tải database của các repository nhiều sao nhất cho một ngôn ngữ
func (a *FetcherAPI) FetchBulk(lang string, maxRepos int) error {
	return a.run("bulk", lang, func() error {
		return a.fetcher.FetchBulk(a.ctx, lang, maxRepos)
	})
}

func (a *FetcherAPI) run(mode, lang string, fn func() error) error {
	if a.fetcher == nil {
		return errors.New("fetcher is not initialized")
	}

	a.statsMu.Lock()
	if a.running {
		a.statsMu.Unlock()
		return errors.New("an acquisition run is already in progress")
	}
	a.running = true
	a.stats = &FetchStats{
		Mode:      mode,
		Language:  lang,
		IsRunning: true,
		StartTime: time.Now(),
	}
	a.statsMu.Unlock()

	err := fn()

	a.updateStats(func(stats *FetchStats) {
		stats.IsRunning = false
		stats.Duration = time.Since(stats.StartTime).String()
		if err != nil {
			stats.LastError = err.Error()
		}
	})

	a.statsMu.Lock()
	a.running = false
	a.statsMu.Unlock()

	return err
}

// GetStats trả về thống kê về lần chạy hiện tại hoặc gần nhất
func (a *FetcherAPI) GetStats() (*FetchStats, error) {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()

	if a.stats == nil {
		return &FetchStats{}, nil
	}

	// Calculate duration if a run is in progress
	stats := *a.stats
	if stats.IsRunning {
		stats.Duration = time.Since(stats.StartTime).String()
	}

	return &stats, nil
}

// updateStats cập nhật thống kê một cách an toàn
func (a *FetcherAPI) updateStats(updateFn func(*FetchStats)) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()

	if a.stats == nil {
		a.stats = &FetchStats{}
	}

	updateFn(a.stats)
}
