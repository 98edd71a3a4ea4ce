// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// コーディネーターとディスパッチワーカーから利用する。
type MetricsCollector interface {
	RecordReminderScheduled(count int)
	RecordReminderCancelled(count int)
	RecordDeliverySuccess()
	RecordDeliveryFailure()
	RecordDeliveryLatency(duration time.Duration)
	RecordDoseTaken(medicationID string)
	RecordDoseUndone(medicationID string)
	RecordPersistenceFailure(op string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remindersScheduled  prometheus.Counter
	remindersCancelled  prometheus.Counter
	deliverySuccess     prometheus.Counter
	deliveryFail        prometheus.Counter
	deliveryLatency     prometheus.Histogram
	dosesTaken          prometheus.Counter
	dosesUndone         prometheus.Counter
	persistenceFailures *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remindersScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_reminders_scheduled_total",
			Help: "スケジュールされたリマインダーの合計数",
		}),
		remindersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_reminders_cancelled_total",
			Help: "取り消されたリマインダーの合計数",
		}),
		deliverySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_delivery_success_total",
			Help: "リマインダー配信成功の合計数",
		}),
		deliveryFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_delivery_fail_total",
			Help: "リマインダー配信失敗の合計数",
		}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dosekeeper_delivery_latency_seconds",
			Help:    "リマインダー配信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		dosesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_doses_taken_total",
			Help: "記録された服用の合計数",
		}),
		dosesUndone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dosekeeper_doses_undone_total",
			Help: "取り消された服用記録の合計数",
		}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dosekeeper_persistence_failures_total",
			Help: "操作別の永続化失敗の合計数",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.remindersScheduled,
		c.remindersCancelled,
		c.deliverySuccess,
		c.deliveryFail,
		c.deliveryLatency,
		c.dosesTaken,
		c.dosesUndone,
		c.persistenceFailures,
	)

	return c
}

// RecordReminderScheduled はリマインダーのスケジュール件数を記録する。
func (c *Collector) RecordReminderScheduled(count int) {
	c.remindersScheduled.Add(float64(count))
}

// RecordReminderCancelled はリマインダーの取り消し件数を記録する。
func (c *Collector) RecordReminderCancelled(count int) {
	c.remindersCancelled.Add(float64(count))
}

// RecordDeliverySuccess は配信成功を記録する。
func (c *Collector) RecordDeliverySuccess() {
	c.deliverySuccess.Inc()
}

// RecordDeliveryFailure は配信失敗を記録する。
func (c *Collector) RecordDeliveryFailure() {
	c.deliveryFail.Inc()
}

// RecordDeliveryLatency は配信のレイテンシを記録する。
func (c *Collector) RecordDeliveryLatency(duration time.Duration) {
	c.deliveryLatency.Observe(duration.Seconds())
}

// RecordDoseTaken は服用記録を記録する。
func (c *Collector) RecordDoseTaken(medicationID string) {
	c.dosesTaken.Inc()
}

// RecordDoseUndone は服用記録の取り消しを記録する。
func (c *Collector) RecordDoseUndone(medicationID string) {
	c.dosesUndone.Inc()
}

// RecordPersistenceFailure は永続化失敗を操作別に記録する。
func (c *Collector) RecordPersistenceFailure(op string) {
	c.persistenceFailures.WithLabelValues(op).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
