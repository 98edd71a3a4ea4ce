package schedule

import (
	"testing"
	"time"

	"github.com/hitoshi/dosekeeper/internal/model"
)

// 2025-01-08 は水曜日。
var wednesday = time.Date(2025, 1, 8, 0, 0, 0, 0, time.Local)

func testMedication(frequency int, days []int) *model.Medication {
	return &model.Medication{
		ID:         "med-1",
		Name:       "テスト薬",
		Dosage:     "100mg",
		Frequency:  frequency,
		DaysOfWeek: days,
		IsActive:   true,
	}
}

// TestDoseTimes_FrequencyOne は1日1回の服用時刻が8:00のみであることを検証する。
func TestDoseTimes_FrequencyOne(t *testing.T) {
	med := testMedication(1, []int{1, 2, 3, 4, 5, 6, 7})

	times := DoseTimes(med, wednesday)
	if len(times) != 1 {
		t.Fatalf("expected 1 dose time, got %d", len(times))
	}
	want := time.Date(2025, 1, 8, 8, 0, 0, 0, time.Local)
	if !times[0].Equal(want) {
		t.Errorf("dose time = %v, want %v", times[0], want)
	}
}

// TestDoseTimes_FrequencyTwo は1日2回の服用時刻が8:00と15:00であることを検証する。
func TestDoseTimes_FrequencyTwo(t *testing.T) {
	med := testMedication(2, []int{1, 2, 3, 4, 5})

	times := DoseTimes(med, wednesday)
	if len(times) != 2 {
		t.Fatalf("expected 2 dose times, got %d", len(times))
	}
	want0 := time.Date(2025, 1, 8, 8, 0, 0, 0, time.Local)
	want1 := time.Date(2025, 1, 8, 15, 0, 0, 0, time.Local)
	if !times[0].Equal(want0) {
		t.Errorf("times[0] = %v, want %v", times[0], want0)
	}
	if !times[1].Equal(want1) {
		t.Errorf("times[1] = %v, want %v", times[1], want1)
	}
}

// TestDoseTimes_NonScheduledWeekday は服用曜日以外の日に空が返ることを検証する。
func TestDoseTimes_NonScheduledWeekday(t *testing.T) {
	// 月〜金のみ。2025-01-11は土曜日。
	med := testMedication(2, []int{1, 2, 3, 4, 5})
	saturday := time.Date(2025, 1, 11, 0, 0, 0, 0, time.Local)

	times := DoseTimes(med, saturday)
	if len(times) != 0 {
		t.Errorf("expected no dose times on non-scheduled weekday, got %d", len(times))
	}
}

// TestDoseTimes_SundayIsSeven はISO曜日番号7が日曜日であることを検証する。
func TestDoseTimes_SundayIsSeven(t *testing.T) {
	med := testMedication(1, []int{7})
	sunday := time.Date(2025, 1, 12, 0, 0, 0, 0, time.Local)

	if times := DoseTimes(med, sunday); len(times) != 1 {
		t.Errorf("expected 1 dose time on Sunday, got %d", len(times))
	}
	if times := DoseTimes(med, wednesday); len(times) != 0 {
		t.Errorf("expected no dose times on Wednesday, got %d", len(times))
	}
}

// TestDoseTimes_Properties は任意のFrequencyでf個・単調増加・時間帯内であることを検証する。
func TestDoseTimes_Properties(t *testing.T) {
	windowStart := time.Date(2025, 1, 8, 8, 0, 0, 0, time.Local)
	windowEnd := time.Date(2025, 1, 8, 22, 0, 0, 0, time.Local)

	for f := 1; f <= 12; f++ {
		med := testMedication(f, []int{3})
		times := DoseTimes(med, wednesday)

		if len(times) != f {
			t.Fatalf("frequency=%d: expected %d dose times, got %d", f, f, len(times))
		}
		for i, at := range times {
			if at.Before(windowStart) || !at.Before(windowEnd) {
				t.Errorf("frequency=%d: times[%d]=%v outside [08:00, 22:00)", f, i, at)
			}
			if i > 0 && !times[i-1].Before(at) {
				t.Errorf("frequency=%d: times not strictly increasing at %d: %v >= %v", f, i, times[i-1], at)
			}
		}
	}
}

// TestDoseTimes_Deterministic は同一入力に対して常に同一の結果を返すことを検証する。
func TestDoseTimes_Deterministic(t *testing.T) {
	med := testMedication(3, []int{3})

	first := DoseTimes(med, wednesday)
	second := DoseTimes(med, wednesday)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("times[%d] differ: %v vs %v", i, first[i], second[i])
		}
	}
}

// TestSlotsForDate_ToleranceMatch は前後30分以内の服用記録でスロットが満たされることを検証する。
func TestSlotsForDate_ToleranceMatch(t *testing.T) {
	med := testMedication(2, []int{1, 2, 3, 4, 5})

	// 8:05に服用 → 8:00スロットは満たされ、15:00スロットは未服用のまま
	taken := []time.Time{time.Date(2025, 1, 8, 8, 5, 0, 0, time.Local)}
	slots := SlotsForDate(med, wednesday, taken)

	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Satisfied {
		t.Error("8:00 slot should be satisfied by record at 8:05")
	}
	if slots[1].Satisfied {
		t.Error("15:00 slot should not be satisfied")
	}
}

func TestSlotsForDate_ToleranceBoundary(t *testing.T) {
	med := testMedication(1, []int{3})

	tests := []struct {
		name      string
		takenAt   time.Time
		satisfied bool
	}{
		{"ちょうど30分後", time.Date(2025, 1, 8, 8, 30, 0, 0, time.Local), true},
		{"ちょうど30分前", time.Date(2025, 1, 8, 7, 30, 0, 0, time.Local), true},
		{"31分後", time.Date(2025, 1, 8, 8, 31, 0, 0, time.Local), false},
		{"31分前", time.Date(2025, 1, 8, 7, 29, 0, 0, time.Local), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := SlotsForDate(med, wednesday, []time.Time{tt.takenAt})
			if len(slots) != 1 {
				t.Fatalf("expected 1 slot, got %d", len(slots))
			}
			if slots[0].Satisfied != tt.satisfied {
				t.Errorf("Satisfied = %v, want %v", slots[0].Satisfied, tt.satisfied)
			}
		})
	}
}

// TestNextDoseTime_ReturnsFirstFutureUnsatisfied は未来かつ未服用の最初のスロットを返すことを検証する。
func TestNextDoseTime_ReturnsFirstFutureUnsatisfied(t *testing.T) {
	med := testMedication(2, []int{1, 2, 3, 4, 5})
	now := time.Date(2025, 1, 8, 9, 0, 0, 0, time.Local)
	taken := []time.Time{time.Date(2025, 1, 8, 8, 5, 0, 0, time.Local)}

	next, ok := NextDoseTime(med, now, taken)
	if !ok {
		t.Fatal("expected a next dose time")
	}
	want := time.Date(2025, 1, 8, 15, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

// TestNextDoseTime_AllPast はすべての予定が過去の場合にfalseを返すことを検証する。
func TestNextDoseTime_AllPast(t *testing.T) {
	med := testMedication(2, []int{1, 2, 3, 4, 5})
	now := time.Date(2025, 1, 8, 23, 0, 0, 0, time.Local)

	if _, ok := NextDoseTime(med, now, nil); ok {
		t.Error("expected no next dose time after the awake window")
	}
}

// TestNextDoseTime_AllSatisfied はすべて服用済みの場合にfalseを返すことを検証する。
func TestNextDoseTime_AllSatisfied(t *testing.T) {
	med := testMedication(2, []int{1, 2, 3, 4, 5})
	now := time.Date(2025, 1, 8, 7, 0, 0, 0, time.Local)
	taken := []time.Time{
		time.Date(2025, 1, 8, 8, 10, 0, 0, time.Local),
		time.Date(2025, 1, 8, 14, 50, 0, 0, time.Local),
	}

	if next, ok := NextDoseTime(med, now, taken); ok {
		t.Errorf("expected no next dose time, got %v", next)
	}
}

// TestUpcomingSlots_FutureOnly は当日の過去時刻がスキップされることを検証する。
func TestUpcomingSlots_FutureOnly(t *testing.T) {
	med := testMedication(2, []int{1, 2, 3, 4, 5, 6, 7})
	now := time.Date(2025, 1, 8, 9, 0, 0, 0, time.Local)

	slots := UpcomingSlots(med, now)

	// 7日間 × 2回 = 14スロットのうち、当日8:00の過去分のみ除外される
	if len(slots) != 13 {
		t.Fatalf("expected 13 upcoming slots, got %d", len(slots))
	}
	for _, slot := range slots {
		if !slot.ScheduledTime.After(now) {
			t.Errorf("slot %v is not in the future", slot.ScheduledTime)
		}
	}
}

// TestUpcomingSlots_HonorsDaysOfWeek は服用曜日以外の日がスケジュールされないことを検証する。
func TestUpcomingSlots_HonorsDaysOfWeek(t *testing.T) {
	// 水曜のみ、1日1回
	med := testMedication(1, []int{3})
	now := time.Date(2025, 1, 8, 7, 0, 0, 0, time.Local)

	slots := UpcomingSlots(med, now)
	if len(slots) != 1 {
		t.Fatalf("expected 1 upcoming slot, got %d", len(slots))
	}
	want := time.Date(2025, 1, 8, 8, 0, 0, 0, time.Local)
	if !slots[0].ScheduledTime.Equal(want) {
		t.Errorf("slot = %v, want %v", slots[0].ScheduledTime, want)
	}
}

// TestReminderID_Deterministic は同一入力から同一IDが導出されることを検証する。
func TestReminderID_Deterministic(t *testing.T) {
	at := time.Date(2025, 1, 8, 8, 0, 0, 0, time.Local)

	id1 := ReminderID("med-1", at)
	id2 := ReminderID("med-1", at)
	if id1 != id2 {
		t.Errorf("ids differ: %q vs %q", id1, id2)
	}

	other := ReminderID("med-2", at)
	if id1 == other {
		t.Error("different medications should produce different reminder ids")
	}
}
