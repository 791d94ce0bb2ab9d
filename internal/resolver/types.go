package resolver

import "strings"

// RepositoryCandidate là một repository trả về từ search, chưa biết có database hay không
type RepositoryCandidate struct {
	RepoName string `json:"repo_name"`
	HtmlUrl  string `json:"html_url"`
	Stars    int    `json:"stars"`
	Forks    int    `json:"forks"`
}

// DatabaseDescriptor xác định artifact database của một repository và cách tải nó.
// Đây cũng là shape được ghi vào checkpoint file.
type DatabaseDescriptor struct {
	RepoName    string `json:"repo_name"`
	HtmlUrl     string `json:"html_url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	DbUrl       string `json:"db_url"`
	Forks       int    `json:"forks"`
	Stars       int    `json:"stars"`
}

// SplitRepoName tách "org/repo" thành org và repo
func SplitRepoName(fullName string) (string, string) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", fullName
}
