// Gói dto cung cấp các đối tượng truyền dữ liệu cho dự án
// Chuyển đổi phản hồi api của GitHub thành một cấu trúc

package githubapi

type SearchItem struct {
	FullName string `json:"full_name"`
	HtmlUrl  string `json:"html_url"`
	Forks    int    `json:"forks"`
	Watchers int    `json:"watchers"`
}

// Mapping response
type SearchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []SearchItem `json:"items"`
}

// DatabaseEntry là một entry trong danh sách code-scanning databases của repository
type DatabaseEntry struct {
	Name        string `json:"name"`
	Language    string `json:"language"`
	Url         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// ErrorShape là phản hồi lỗi tường minh từ GitHub API
type ErrorShape struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type RateLimitCore struct {
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type RateLimitResources struct {
	Core RateLimitCore `json:"core"`
}

type RateLimitResponse struct {
	Resources RateLimitResources `json:"resources"`
}
