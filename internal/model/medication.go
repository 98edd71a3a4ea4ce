// Package model はドメインモデルを定義する。
package model

import "time"

// Medication は登録された薬を表す。
// Frequency は1日あたりの服用回数、DaysOfWeek は服用する曜日の集合。
type Medication struct {
	ID         string
	Name       string
	Dosage     string
	Frequency  int
	DaysOfWeek []int // ISO曜日番号: 1=月曜 .. 7=日曜
	IsActive   bool
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasWeekday は指定されたISO曜日番号（1=月曜..7=日曜）が
// 服用曜日に含まれるかを返す。
func (m *Medication) HasWeekday(weekday int) bool {
	for _, d := range m.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

// Clone はMedicationのディープコピーを返す。
// コーディネーター内部のスライスを外部に漏らさないために使用する。
func (m *Medication) Clone() *Medication {
	c := *m
	c.DaysOfWeek = make([]int, len(m.DaysOfWeek))
	copy(c.DaysOfWeek, m.DaysOfWeek)
	return &c
}

// ISOWeekday はtime.TimeのISO曜日番号（1=月曜..7=日曜）を返す。
// time.Weekdayは日曜=0のため変換が必要。
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// TakenRecord は服用済みを示すタイムスタンプ付きの記録。
// 同一の薬について1日にFrequency回まで記録できる。
type TakenRecord struct {
	MedicationID string
	TakenAt      time.Time
}

// DoseSlot は特定日の服用予定1回分を表す派生値。
// 永続化されず、MedicationとTakenRecordから常に再計算される。
type DoseSlot struct {
	MedicationID  string
	ScheduledTime time.Time
	Satisfied     bool
}

// SameDate は2つの時刻が同一のカレンダー日付（ローカル時刻）かを返す。
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
