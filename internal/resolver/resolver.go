// Gói resolver tìm repository ứng viên qua search endpoint và xác định
// repository nào có database cho ngôn ngữ cần tìm.
//
// Chính sách xử lý phản hồi danh sách database: entry thiếu trường bắt buộc
// thì cảnh báo và bỏ qua; phản hồi không phải list chỉ là lỗi chí mạng khi nó
// mang payload lỗi tường minh, còn lại ghi log và đi tiếp. Nhờ vậy một phản
// hồi lỗi cục bộ không làm hỏng cả batch.

package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	githubapi "github.com/thep200/codeql-fetcher/internal/github_api"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

type Resolver struct {
	Logger log.Logger
	Caller *githubapi.Caller
}

func NewResolver(logger log.Logger, caller *githubapi.Caller) (*Resolver, error) {
	return &Resolver{
		Logger: logger,
		Caller: caller,
	}, nil
}

// Search trả về một trang kết quả search cho ngôn ngữ, sắp theo sao giảm dần.
// Resolver không giữ state giữa các lần gọi; orchestrator tự tăng page.
func (r *Resolver) Search(ctx context.Context, lang string, page int) ([]RepositoryCandidate, error) {
	items, err := r.Caller.SearchRepositories(ctx, lang, page)
	if err != nil {
		return nil, err
	}

	candidates := make([]RepositoryCandidate, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, RepositoryCandidate{
			RepoName: item.FullName,
			HtmlUrl:  item.HtmlUrl,
			Stars:    item.Watchers,
			Forks:    item.Forks,
		})
	}
	return candidates, nil
}

// ResolveDatabases lọc các candidate theo database có ngôn ngữ khớp.
// Thứ tự descriptor trả về giữ nguyên thứ tự candidate đầu vào.
func (r *Resolver) ResolveDatabases(ctx context.Context, candidates []RepositoryCandidate, lang string) ([]DatabaseDescriptor, error) {
	ghLang := GithubLang(lang)
	descriptors := make([]DatabaseDescriptor, 0, len(candidates))

	for _, candidate := range candidates {
		body, err := r.Caller.CallDatabases(ctx, candidate.RepoName)
		if err != nil {
			return nil, err
		}

		var entries []githubapi.DatabaseEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			// Không phải list: lỗi tường minh thì dừng, shape lạ thì bỏ qua
			errShape := &githubapi.ErrorShape{}
			if jsonErr := json.Unmarshal(body, errShape); jsonErr == nil && (errShape.Message != "" || errShape.Error != "") {
				msg := errShape.Message
				if msg == "" {
					msg = errShape.Error
				}
				return nil, fmt.Errorf("GitHub API error for %s: %s", candidate.RepoName, msg)
			}

			r.Logger.Warn(ctx, "Unexpected response format for %s databases, skipping", candidate.RepoName)
			continue
		}

		for _, entry := range entries {
			if entry.Language != ghLang {
				continue
			}
			if entry.Url == "" {
				r.Logger.Warn(ctx, "Database entry missing 'url' field for %s, skipping", candidate.RepoName)
				continue
			}

			contentType := entry.ContentType
			if contentType == "" {
				contentType = "application/zip"
			}

			descriptors = append(descriptors, DatabaseDescriptor{
				RepoName:    candidate.RepoName,
				HtmlUrl:     candidate.HtmlUrl,
				ContentType: contentType,
				Size:        entry.Size,
				DbUrl:       entry.Url,
				Forks:       candidate.Forks,
				Stars:       candidate.Stars,
			})
		}
	}

	return descriptors, nil
}
