// Package schedule は服用時刻の計算ロジックを提供する。
// すべて純粋関数であり、同じ入力に対して常に同じ結果を返す。
// この決定性により、服用予定は永続化せずに常時再計算できる。
package schedule

import (
	"fmt"
	"time"

	"github.com/hitoshi/dosekeeper/internal/model"
)

const (
	// AwakeStartHour は服用時間帯の開始時刻（8時）。
	AwakeStartHour = 8
	// AwakeWindow は服用時間帯の長さ（8:00〜22:00の14時間）。
	AwakeWindow = 14 * time.Hour
	// Tolerance は服用記録と予定時刻を照合する際の許容幅（前後30分）。
	Tolerance = 30 * time.Minute
	// LookaheadDays はリマインダーを事前スケジュールする日数。
	LookaheadDays = 7
)

// DoseTimes は指定日の服用予定時刻を昇順で返す。
// 指定日の曜日が服用曜日に含まれない場合は空スライスを返す。
// それ以外の場合、8:00から始まる14時間の時間帯をFrequency等分し、
// i番目（0始まり）の服用時刻は 8:00 + floor(i*14h/Frequency) となる。
// Frequency=1の場合は8:00の1回のみ。
func DoseTimes(med *model.Medication, date time.Time) []time.Time {
	if med.Frequency < 1 {
		return nil
	}
	if !med.HasWeekday(model.ISOWeekday(date)) {
		return nil
	}

	base := time.Date(date.Year(), date.Month(), date.Day(), AwakeStartHour, 0, 0, 0, date.Location())
	interval := AwakeWindow / time.Duration(med.Frequency)

	times := make([]time.Time, med.Frequency)
	for i := 0; i < med.Frequency; i++ {
		times[i] = base.Add(time.Duration(i) * interval).Truncate(time.Minute)
	}
	return times
}

// SlotsForDate は指定日のDoseSlotを導出する。
// 各スロットのSatisfiedは、takenのいずれかの記録が予定時刻の
// 前後Tolerance以内に収まるかで判定する（時刻近接マッチ）。
// なお、1日の服用回数上限の判定（DueToday等）はこの近接マッチではなく
// 当日の記録件数とFrequencyの比較で行う。2つの判定基準は、同一スロット
// 近傍で連続して服用した場合などに食い違いうるが、元の挙動を保存している。
func SlotsForDate(med *model.Medication, date time.Time, taken []time.Time) []model.DoseSlot {
	times := DoseTimes(med, date)
	if len(times) == 0 {
		return nil
	}

	slots := make([]model.DoseSlot, len(times))
	for i, st := range times {
		slots[i] = model.DoseSlot{
			MedicationID:  med.ID,
			ScheduledTime: st,
			Satisfied:     satisfiedAt(st, taken),
		}
	}
	return slots
}

// NextDoseTime は今日の服用予定のうち、未来かつ未服用の最初の時刻を返す。
// すべて服用済み、またはすべて過去の場合は falseを返す。
func NextDoseTime(med *model.Medication, now time.Time, taken []time.Time) (time.Time, bool) {
	for _, slot := range SlotsForDate(med, now, taken) {
		if slot.ScheduledTime.After(now) && !slot.Satisfied {
			return slot.ScheduledTime, true
		}
	}
	return time.Time{}, false
}

// UpcomingSlots は現在時刻からLookaheadDays日先までの未来の服用予定を返す。
// 当日の過去時刻はスキップされ、スケジュール対象にならない。
func UpcomingSlots(med *model.Medication, now time.Time) []model.DoseSlot {
	var slots []model.DoseSlot
	for day := 0; day < LookaheadDays; day++ {
		date := now.AddDate(0, 0, day)
		for _, st := range DoseTimes(med, date) {
			if !st.After(now) {
				continue
			}
			slots = append(slots, model.DoseSlot{
				MedicationID:  med.ID,
				ScheduledTime: st,
			})
		}
	}
	return slots
}

// ReminderID は(薬ID, 予定時刻)から決定的なリマインダーIDを導出する。
// 同一スロットの再スケジュールがディスパッチャー側で自然に冪等になる。
func ReminderID(medicationID string, scheduledTime time.Time) string {
	return fmt.Sprintf("%s:%d", medicationID, scheduledTime.Unix())
}

// satisfiedAt は服用記録のいずれかが予定時刻の前後Tolerance以内かを返す。
func satisfiedAt(scheduled time.Time, taken []time.Time) bool {
	for _, at := range taken {
		diff := at.Sub(scheduled)
		if diff < 0 {
			diff = -diff
		}
		if diff <= Tolerance {
			return true
		}
	}
	return false
}
