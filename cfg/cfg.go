package cfg

type (
	App struct {
		Name    string
		Version string
	}

	GithubApi struct {
		AccessToken       string
		ApiUrl            string
		PerPage           int
		RequestsPerSecond int
		ThrottleDelay     int
		RateLimitResetMin int
	}

	Fetcher struct {
		OutputDir          string
		CheckpointFile     string
		MaxRepos           int
		DownloadThreads    int
		MaxAttempts        int
		DownloadTimeoutSec int
	}

	Codeql struct {
		BinPath string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	KafkaProducer struct {
		TopicInstall string
	}

	KafkaConsumer struct {
		GroupID string
	}

	Kafka struct {
		Brokers  []string
		Producer KafkaProducer
		Consumer KafkaConsumer
	}
)

type Config struct {
	App       App
	GithubApi GithubApi
	Fetcher   Fetcher
	Codeql    Codeql
	Mysql     Mysql
	Kafka     Kafka
}
