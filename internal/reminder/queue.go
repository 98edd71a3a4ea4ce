package reminder

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Queue はプロセス内のリマインダーディスパッチャー実装。
// リマインダーIDをキーとする保留マップを保持し、ディスパッチワーカーが
// Dueで期限の到来したエントリを取り出して配信する。
// コーディネーターとワーカーの両方から呼ばれるため排他制御を内包する。
type Queue struct {
	mu      sync.Mutex
	pending map[string]Reminder
}

// NewQueue は空のQueueを生成する。
func NewQueue() *Queue {
	return &Queue{
		pending: make(map[string]Reminder),
	}
}

// Schedule はリマインダーを登録する。同一IDは上書きされる（冪等）。
func (q *Queue) Schedule(ctx context.Context, r Reminder) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[r.ID] = r
	return nil
}

// Cancel は指定IDのリマインダーを取り消す。存在しないIDはno-op。
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	return nil
}

// CancelAll はすべてのリマインダーを取り消す。
func (q *Queue) CancelAll(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = make(map[string]Reminder)
	return nil
}

// CancelByMedication は指定された薬のリマインダーをすべて取り消す。
// 薬の更新・削除時の対象限定の再同期に使用する。
func (q *Queue) CancelByMedication(ctx context.Context, medicationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, r := range q.pending {
		if r.MedicationID == medicationID {
			delete(q.pending, id)
		}
	}
	return nil
}

// Due は時刻nowまでに期限の到来したリマインダーを取り出して返す。
// 返されたエントリは保留マップから削除され、予定時刻の昇順に並ぶ。
// 対象がない場合は空を返す。
func (q *Queue) Due(now time.Time) []Reminder {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Reminder
	for id, r := range q.pending {
		if !r.At.After(now) {
			due = append(due, r)
			delete(q.pending, id)
		}
	}
	sortByTime(due)
	return due
}

// PendingCount は保留中のリマインダー数を返す。テストおよびメトリクス用。
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// PendingForMedication は指定された薬の保留中リマインダーを予定時刻の昇順で返す。
func (q *Queue) PendingForMedication(medicationID string) []Reminder {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []Reminder
	for _, r := range q.pending {
		if r.MedicationID == medicationID {
			result = append(result, r)
		}
	}
	sortByTime(result)
	return result
}

func sortByTime(rs []Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].At.Equal(rs[j].At) {
			return strings.Compare(rs[i].ID, rs[j].ID) < 0
		}
		return rs[i].At.Before(rs[j].At)
	})
}
