package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "codeql-fetcher",
			Version: "0.0.1",
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:       "",
			ApiUrl:            "https://api.github.com",
			PerPage:           30,
			RequestsPerSecond: 10,
			ThrottleDelay:     100,
			RateLimitResetMin: 2,
		},

		// Fetcher
		Fetcher: Fetcher{
			OutputDir:          "output",
			CheckpointFile:     "repos_db.json",
			MaxRepos:           100,
			DownloadThreads:    4,
			MaxAttempts:        5,
			DownloadTimeoutSec: 300,
		},

		// Codeql
		Codeql: Codeql{
			BinPath: "codeql",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "codeql_fetcher",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// Kafka
		Kafka: Kafka{
			Brokers: nil,
			Producer: KafkaProducer{
				TopicInstall: "codeql.db.installed",
			},
			Consumer: KafkaConsumer{
				GroupID: "codeql-fetcher-catalog",
			},
		},
	}, nil
}
