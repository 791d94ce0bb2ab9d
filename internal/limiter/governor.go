// Governor chặn caller cho đến khi quota của GitHub API còn đủ cho số request dự kiến.
// Khác với RateLimiter (giới hạn cục bộ theo giây), Governor đọc quota thật từ API
// và ngủ đến thời điểm reset khi quota không đủ.

package limiter

import (
	"context"
	"time"

	"github.com/thep200/codeql-fetcher/pkg/log"
)

// SafetyMargin là số request dự phòng luôn được giữ lại ngoài số dự kiến.
const SafetyMargin = 3

// resetBuffer cộng thêm sau thời điểm reset để chắc chắn quota đã được cấp lại.
const resetBuffer = 2 * time.Minute

// Clock cho phép test điều khiển thời gian
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// QuotaSource trả về snapshot quota hiện tại. Snapshot luôn được đọc mới,
// không cache giữa các lần gọi.
type QuotaSource interface {
	Snapshot(ctx context.Context) (remaining int, reset time.Time, err error)
}

type Governor struct {
	Logger log.Logger
	Source QuotaSource
	Clock  Clock
}

func NewGovernor(logger log.Logger, source QuotaSource) *Governor {
	return &Governor{
		Logger: logger,
		Source: source,
		Clock:  systemClock{},
	}
}

// Throttle chặn cho đến khi quota còn ít nhất expectedCalls + SafetyMargin request.
// Sau khi ngủ sẽ đọc lại snapshot để xác nhận quota đã đủ.
func (g *Governor) Throttle(ctx context.Context, expectedCalls int) error {
	for {
		remaining, reset, err := g.Source.Snapshot(ctx)
		if err != nil {
			return err
		}

		if remaining >= expectedCalls+SafetyMargin {
			return nil
		}

		wait := reset.Sub(g.Clock.Now()) + resetBuffer
		if wait < resetBuffer {
			wait = resetBuffer
		}

		g.Logger.Warn(ctx, "Remaining requests: %d, need %d. Waiting %.2f minutes until the rate limit resets",
			remaining, expectedCalls+SafetyMargin, wait.Minutes())
		g.Clock.Sleep(wait)
	}
}
