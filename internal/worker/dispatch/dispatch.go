// Package dispatch はリマインダーのバックグラウンド配信処理を提供する。
// 期限の到来したリマインダーを定期的に取り出し、並列制御しながら配信する。
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/dosekeeper/internal/reminder"
)

// DueLister は期限の到来したリマインダーの取り出しインターフェース。
// reminder.Queueが実装する。取り出されたリマインダーはキューから除去される。
type DueLister interface {
	Due(now time.Time) []reminder.Reminder
}

// MetricsCollector は配信メトリクスの記録インターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type MetricsCollector interface {
	RecordDeliverySuccess()
	RecordDeliveryFailure()
	RecordDeliveryLatency(d time.Duration)
}

// Scheduler はリマインダー配信のスケジューリングと並列制御を行う。
// ティッカーで期限の到来したリマインダーを取り出し、
// semaphoreパターンで最大並列数を制御しながら配信を実行する。
// 配信の失敗はログとメトリクスに記録するのみで、リトライは行わない。
type Scheduler struct {
	queue          DueLister
	sender         reminder.Sender
	logger         *slog.Logger
	collector      MetricsCollector
	maxConcurrency int
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
// collectorはnil許容。
func NewScheduler(
	queue DueLister,
	sender reminder.Sender,
	logger *slog.Logger,
	collector MetricsCollector,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		queue:          queue,
		sender:         sender,
		logger:         logger,
		collector:      collector,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("配信スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("配信スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は期限の到来したリマインダーを1回取り出し、並列で配信する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := s.now()

	due := s.queue.Due(start)
	if len(due) == 0 {
		return
	}

	s.logger.Info("配信サイクルを開始します",
		slog.Int("reminder_count", len(due)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, r := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(rem reminder.Reminder) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			s.deliver(ctx, rem)
		}(r)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("配信サイクルが完了しました",
		slog.Int("reminder_count", len(due)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}

// deliver は1件のリマインダーを配信し、結果を記録する。
func (s *Scheduler) deliver(ctx context.Context, r reminder.Reminder) {
	start := s.now()
	err := s.sender.Send(ctx, r)
	latency := time.Since(start)

	if s.collector != nil {
		s.collector.RecordDeliveryLatency(latency)
	}

	if err != nil {
		// 配信失敗は致命的ではない。記録のみ行い、薬データには影響しない。
		s.logger.Error("リマインダーの配信に失敗しました",
			slog.String("reminder_id", r.ID),
			slog.String("medication_id", r.MedicationID),
			slog.String("error", err.Error()),
		)
		if s.collector != nil {
			s.collector.RecordDeliveryFailure()
		}
		return
	}

	if s.collector != nil {
		s.collector.RecordDeliverySuccess()
	}
	s.logger.Info("リマインダーを配信しました",
		slog.String("reminder_id", r.ID),
		slog.String("medication_id", r.MedicationID),
		slog.Time("scheduled_at", r.At),
	)
}
