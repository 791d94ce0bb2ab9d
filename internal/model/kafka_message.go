package model

import "time"

// InstallMessage là cấu trúc dữ liệu gửi tới Kafka mỗi khi một database
// được cài đặt thành công
type InstallMessage struct {
	RepoName    string    `json:"repo_name"`
	Language    string    `json:"language"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	SizeBytes   int64     `json:"size_bytes"`
	Path        string    `json:"path"`
	Source      string    `json:"source"`
	InstalledAt time.Time `json:"installed_at"`
}
