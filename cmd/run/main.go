package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/thep200/codeql-fetcher/api"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

func main() {
	repo := flag.String("repo", "", "GitHub repository in 'org/repo' format. Empty fetches the top repositories of the language")
	lang := flag.String("lang", "c", "Programming language to fetch databases for")
	maxRepos := flag.Int("max-repos", 0, "Maximum number of repositories in bulk mode (0 uses the configured default)")
	flag.Parse()

	ctx := context.Background()
	logger, _ := log.NewCslLogger()

	fetcherApi := api.NewFetcherAPI()
	if err := fetcherApi.Initialize(ctx); err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Starting CodeQL database fetcher, lang: %s", *lang)

	var err error
	if *repo != "" {
		err = fetcherApi.FetchSingle(*repo, *lang)
	} else {
		err = fetcherApi.FetchBulk(*lang, *maxRepos)
	}

	stats, _ := fetcherApi.GetStats()
	if err != nil {
		logger.Error(ctx, "Failed after %s: %v", stats.Duration, err)
		os.Exit(1)
	}

	logger.Info(ctx, "Successfully installed %d databases (%d built locally) in %s",
		stats.DbsInstalled, stats.LocalBuilds, stats.Duration)
}
