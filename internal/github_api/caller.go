// Gói githubapi cung cấp một caller cho GitHub API.
// Caller chịu trách nhiệm thực hiện yêu cầu API: xác thực bằng token nếu được
// cung cấp, phân loại lỗi 4xx thành lỗi cấu hình, và tự điều tiết dựa trên
// các header X-RateLimit-* của phản hồi.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/internal/limiter"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

// selfThrottleFloor là ngưỡng quota còn lại mà dưới nó caller sẽ ngủ đến thời điểm reset
const selfThrottleFloor = 7

type Caller struct {
	Logger      log.Logger
	Config      *cfg.Config
	rateLimiter *limiter.RateLimiter
	client      *http.Client
	sleep       func(time.Duration)
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	rps := config.GithubApi.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Caller{
		Logger:      logger,
		Config:      config,
		rateLimiter: limiter.NewRateLimiter(rps),
		client:      &http.Client{Timeout: 30 * time.Second},
		sleep:       time.Sleep,
	}
}

// get thực hiện một GET request và trả về body thô.
// 4xx là lỗi cấu hình (không retry), 5xx là lỗi server thông thường.
func (c *Caller) get(ctx context.Context, url string) (json.RawMessage, error) {
	// Giới hạn số request mỗi giây trước khi gọi
	throttleDelay := c.Config.GithubApi.ThrottleDelay
	if throttleDelay <= 0 {
		throttleDelay = 100
	}
	for !c.rateLimiter.Allow() {
		c.sleep(time.Duration(throttleDelay) * time.Millisecond)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.Config.GithubApi.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.Config.GithubApi.AccessToken))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.WrapTransient(err, "network error while accessing GitHub API: %s", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.WrapTransient(err, "failed to read GitHub API response: %s", url)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg := fmt.Sprintf("GitHub API returned %d for %s", resp.StatusCode, url)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			msg += ". Please check your GitHub token - it may be invalid or expired"
		case http.StatusForbidden:
			msg += ". Please check your GitHub token permissions"
		default:
			msg += ". Please check your request parameters"
		}
		return nil, errs.Configf("%s", msg)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d for %s", resp.StatusCode, url)
	}

	// Tự điều tiết: nếu quota sắp hết thì ngủ đến thời điểm reset.
	// Đây là lưới an toàn cho trường hợp ước lượng của governor bị lệch.
	c.throttleFromHeaders(ctx, resp)

	return body, nil
}

// throttleFromHeaders đọc header X-RateLimit-* và ngủ đến thời điểm reset nếu quota gần hết
func (c *Caller) throttleFromHeaders(ctx context.Context, resp *http.Response) {
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")
	if remainingStr == "" || resetStr == "" {
		return
	}

	remaining, err := strconv.Atoi(remainingStr)
	if err != nil || remaining >= selfThrottleFloor {
		return
	}

	resetInt, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		// Không xác định được thời gian reset, dùng cấu hình mặc định
		waitMin := c.Config.GithubApi.RateLimitResetMin
		if waitMin <= 0 {
			waitMin = 2
		}
		c.Logger.Warn(ctx, "Rate limit low (%d remaining), reset time unknown. Waiting %d minutes", remaining, waitMin)
		c.sleep(time.Duration(waitMin) * time.Minute)
		return
	}

	resetTime := time.Unix(resetInt, 0)
	wait := time.Until(resetTime) + time.Second
	if wait <= 0 {
		return
	}

	c.Logger.Warn(ctx, "Remaining requests: %d. Rate limit resets at: %s. Waiting %.2f minutes",
		remaining, resetTime.Format(time.RFC3339), wait.Minutes())
	c.sleep(wait)
}

// SearchRepositories gọi search endpoint, sắp xếp theo sao giảm dần
func (c *Caller) SearchRepositories(ctx context.Context, lang string, page int) ([]SearchItem, error) {
	perPage := c.Config.GithubApi.PerPage
	if perPage <= 0 {
		perPage = 30
	}

	url := fmt.Sprintf("%s/search/repositories?q=language:%s&sort=stars&order=desc&per_page=%d&page=%d",
		c.Config.GithubApi.ApiUrl, lang, perPage, page)
	c.Logger.Info(ctx, "Calling GitHub API: %s", url)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	rawResponse := &SearchResponse{}
	if err := json.Unmarshal(body, rawResponse); err != nil {
		return nil, fmt.Errorf("invalid response from GitHub API: %w", err)
	}

	c.Logger.Info(ctx, "Total repositories found: %d, page: %d, items received: %d",
		rawResponse.TotalCount, page, len(rawResponse.Items))

	if page*perPage > 1000 {
		c.Logger.Warn(ctx, "GitHub API only provides access to the first 1,000 search results")
	}

	return rawResponse.Items, nil
}

// CallDatabases trả về body thô của danh sách code-scanning databases.
// Trả về thô vì phản hồi có thể là list, là lỗi tường minh, hoặc một shape
// bất kỳ; resolver quyết định cách xử lý từng trường hợp.
func (c *Caller) CallDatabases(ctx context.Context, repoName string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/repos/%s/code-scanning/codeql/databases", c.Config.GithubApi.ApiUrl, repoName)
	return c.get(ctx, url)
}

// Snapshot đọc quota hiện tại từ rate_limit endpoint. Implement limiter.QuotaSource.
func (c *Caller) Snapshot(ctx context.Context) (int, time.Time, error) {
	url := fmt.Sprintf("%s/rate_limit", c.Config.GithubApi.ApiUrl)
	body, err := c.get(ctx, url)
	if err != nil {
		return 0, time.Time{}, err
	}

	rl := &RateLimitResponse{}
	if err := json.Unmarshal(body, rl); err != nil {
		return 0, time.Time{}, fmt.Errorf("invalid response from GitHub rate limit API: %w", err)
	}

	return rl.Resources.Core.Remaining, time.Unix(rl.Resources.Core.Reset, 0), nil
}
