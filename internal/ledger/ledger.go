// Package ledger は服用記録のメモリ上インデックスを提供する。
// 永続化された履歴のスナップショットとして構築され、コーディネーターが
// 専有する。外部へは常にコピーを返し、内部スライスを共有しない。
package ledger

import (
	"sort"
	"time"

	"github.com/hitoshi/dosekeeper/internal/model"
)

// Ledger は薬IDごとの服用タイムスタンプを昇順で保持する。
// 未知の薬IDは記録ゼロ件として扱い、エラーにはならない。
// 内部で排他制御は行わない。書き込みはコーディネーターが直列化する。
type Ledger struct {
	records map[string][]time.Time
}

// New は空のLedgerを生成する。
func New() *Ledger {
	return &Ledger{
		records: make(map[string][]time.Time),
	}
}

// Replace は全記録を指定されたスナップショットで置き換える。
// Load時に永続化された履歴から再構築するために使用する。
func (l *Ledger) Replace(history []model.TakenRecord) {
	l.records = make(map[string][]time.Time)
	for _, rec := range history {
		l.records[rec.MedicationID] = append(l.records[rec.MedicationID], rec.TakenAt)
	}
	for id := range l.records {
		ts := l.records[id]
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	}
}

// Record は服用タイムスタンプを追記する。
// 重複の検証は行わない。1日あたりの上限はコーディネーターが
// 呼び出し前に強制する。
func (l *Ledger) Record(medicationID string, at time.Time) {
	ts := l.records[medicationID]
	// 末尾より過去の時刻が来た場合のみソートし直す
	if n := len(ts); n > 0 && at.Before(ts[n-1]) {
		ts = append(ts, at)
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
		l.records[medicationID] = ts
		return
	}
	l.records[medicationID] = append(ts, at)
}

// TakenOn は指定日の服用タイムスタンプを昇順で返す。
// 記録が存在しない場合は空スライスを返す。
func (l *Ledger) TakenOn(medicationID string, date time.Time) []time.Time {
	var result []time.Time
	for _, at := range l.records[medicationID] {
		if model.SameDate(at, date) {
			result = append(result, at)
		}
	}
	return result
}

// CountOn は指定日の服用記録件数を返す。
func (l *Ledger) CountOn(medicationID string, date time.Time) int {
	count := 0
	for _, at := range l.records[medicationID] {
		if model.SameDate(at, date) {
			count++
		}
	}
	return count
}

// RemoveMostRecentOn は指定日の最新の服用記録1件を削除する。
// 該当日の記録が存在しない場合は何もせずfalseを返す。
func (l *Ledger) RemoveMostRecentOn(medicationID string, date time.Time) bool {
	ts := l.records[medicationID]
	latest := -1
	for i, at := range ts {
		if model.SameDate(at, date) {
			latest = i
		}
	}
	if latest < 0 {
		return false
	}

	l.records[medicationID] = append(ts[:latest], ts[latest+1:]...)
	return true
}

// Purge は指定された薬の全記録を削除する。
func (l *Ledger) Purge(medicationID string) {
	delete(l.records, medicationID)
}

// ForMedication は指定された薬の全記録をTakenRecordとして昇順で返す。
// 履歴の永続化（ReplaceForMedication）に使用する。
func (l *Ledger) ForMedication(medicationID string) []model.TakenRecord {
	ts := l.records[medicationID]
	result := make([]model.TakenRecord, len(ts))
	for i, at := range ts {
		result[i] = model.TakenRecord{MedicationID: medicationID, TakenAt: at}
	}
	return result
}
