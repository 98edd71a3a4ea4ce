// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, medication, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION"
	ErrCodeMedicationNotFound = "NOT_FOUND"
	ErrCodeAllDosesTaken      = "ALL_DOSES_TAKEN"
	ErrCodeNoDosesTaken       = "NO_DOSES_TAKEN"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
)

// NewValidationError は入力検証エラーを生成する。
// 永続化前のコーディネーター境界で検出され、一切の副作用を持たない。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "薬の名前・用量・服用回数・服用曜日を確認してください。",
	}
}

// NewMedicationNotFoundError は薬が見つからない場合のエラーを生成する。
func NewMedicationNotFoundError(medicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeMedicationNotFound,
		Message:  fmt.Sprintf("指定された薬が見つかりません: %s", medicationID),
		Category: "medication",
		Action:   "薬のIDを確認してください。",
	}
}

// NewAllDosesTakenError は当日の服用回数が上限に達している場合のエラーを生成する。
func NewAllDosesTakenError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeAllDosesTaken,
		Message:  fmt.Sprintf("今日の服用はすべて記録済みです: %s", name),
		Category: "medication",
		Action:   "これ以上の記録は必要ありません。",
	}
}

// NewNoDosesTakenError は当日の服用記録が存在しない場合のエラーを生成する。
func NewNoDosesTakenError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeNoDosesTaken,
		Message:  fmt.Sprintf("今日の服用記録がありません: %s", name),
		Category: "medication",
		Action:   "取り消す服用記録がないため、操作は不要です。",
	}
}

// NewPersistenceError は永続化失敗エラーを生成する。
// メモリ上の状態は永続化成功後にのみ更新されるため、このエラーが
// 返された場合でもメモリと永続状態が食い違うことはない。
func NewPersistenceError(op string) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  fmt.Sprintf("データの保存に失敗しました: %s", op),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
