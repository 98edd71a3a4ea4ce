// Package reminder はリマインダー通知のスケジューリングと配信を提供する。
package reminder

import (
	"context"
	"time"
)

// Reminder は1回分の服用予定に対応する時刻起動の通知を表す。
// IDは(薬ID, 予定時刻)から決定的に導出され、同一スロットの
// 再スケジュールが自然に冪等になる。
type Reminder struct {
	ID           string
	MedicationID string
	Title        string
	Body         string
	At           time.Time
	Payload      map[string]string
}

// Dispatcher はリマインダーのスケジューリングインターフェース。
// 配信はベストエフォートであり、失敗してもコーディネーターの
// 薬データ変更はロールバックされない。
type Dispatcher interface {
	// Schedule はリマインダーを登録する。同一IDの再登録は上書きとなり、
	// 内容が変わらなければ実質no-op。
	Schedule(ctx context.Context, r Reminder) error

	// Cancel は指定IDのリマインダーを取り消す。
	// 存在しないIDの取り消しはエラーにならない。
	Cancel(ctx context.Context, id string) error

	// CancelAll はすべてのリマインダーを取り消す。
	CancelAll(ctx context.Context) error
}

// Sender は期限の到来したリマインダーを実際に届ける配信インターフェース。
type Sender interface {
	Send(ctx context.Context, r Reminder) error
}
