// Package resync はメモリ上の服薬データとリマインダーの定期再同期ジョブを提供する。
// ストアの全件再読み込みにより、スケジュール済みリマインダーの7日先読み窓を
// 前進させ、外部要因によるずれを解消する。
package resync

import (
	"context"
	"log/slog"
	"time"
)

// Loader は服薬データの再読み込みインターフェース。
// medication.Serviceが実装する。
type Loader interface {
	Load(ctx context.Context) error
}

// Job は定期再同期ジョブ。
// 再読み込みの失敗は次回に持ち越すだけで、既存のメモリ上の状態は維持される。
type Job struct {
	loader Loader
	logger *slog.Logger
}

// NewJob は新しいJobを生成する。
func NewJob(loader Loader, logger *slog.Logger) *Job {
	return &Job{
		loader: loader,
		logger: logger,
	}
}

// Start は指定間隔のティッカーで再同期ジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// 起動直後の実行は行わない（初回のLoadはアプリケーション起動時に済んでいる）。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("再同期ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("再同期ジョブを停止しました")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce は再読み込みを1回実行する。
func (j *Job) RunOnce(ctx context.Context) {
	start := time.Now()

	if err := j.loader.Load(ctx); err != nil {
		j.logger.Error("再同期に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	j.logger.Info("再同期が完了しました",
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
