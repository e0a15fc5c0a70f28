package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
)

// BookingSweeper 预约后台清扫器
// 定期把宽限期已过仍未认领的预约标记为过期，释放设备时段
type BookingSweeper struct {
	books  *booking.Coordinator
	logger *zap.Logger

	sweepInterval time.Duration

	// 统计：仅清扫协程自身读写
	statsRuns  int64
	statsSwept int64
}

// NewBookingSweeper 创建清扫器。interval<=0 时默认每分钟一次。
func NewBookingSweeper(books *booking.Coordinator, interval time.Duration, logger *zap.Logger) *BookingSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BookingSweeper{
		books:         books,
		logger:        logger,
		sweepInterval: interval,
	}
}

// Start 启动清扫器，阻塞直到 ctx 取消
func (s *BookingSweeper) Start(ctx context.Context) {
	s.logger.Info("booking sweeper started",
		zap.Duration("sweep_interval", s.sweepInterval))

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("booking sweeper stopped",
				zap.Int64("runs", s.statsRuns),
				zap.Int64("swept", s.statsSwept))
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep 执行一次过期标记
func (s *BookingSweeper) sweep(ctx context.Context) {
	s.statsRuns++

	n, err := s.books.ExpireNoShows(ctx)
	if err != nil {
		s.logger.Error("expire no-show bookings failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.statsSwept += n
		s.logger.Info("expired no-show bookings", zap.Int64("count", n))
	}
}
