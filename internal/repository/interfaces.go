// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/dosekeeper/internal/model"
)

// MedicationRepository は薬データの永続化インターフェース。
type MedicationRepository interface {
	// Insert は薬を新規作成する。
	Insert(ctx context.Context, med *model.Medication) error

	// Update は薬を更新する。対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, med *model.Medication) error

	// Delete は指定IDの薬を削除する。対象が存在しない場合はErrNotFoundを返す。
	// 関連するtaken_historyはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListAll は全薬を作成日時昇順で返す。
	ListAll(ctx context.Context) ([]*model.Medication, error)
}

// TakenHistoryRepository は服用履歴の永続化インターフェース。
// taken_historyは(medication_id, taken_at)をキーとする追記ログで、
// メモリ上のAdherenceLedgerの永続化元になる。
type TakenHistoryRepository interface {
	// ListAll は全服用履歴をtaken_at昇順で返す。
	ListAll(ctx context.Context) ([]model.TakenRecord, error)

	// ReplaceForMedication は指定された薬の履歴を同一トランザクションで
	// 全削除して入れ替える。メモリ上のLedgerと永続状態を一致させるための
	// 置き換え操作。
	ReplaceForMedication(ctx context.Context, medicationID string, records []model.TakenRecord) error

	// DeleteByMedication は指定された薬の全履歴を削除する。
	DeleteByMedication(ctx context.Context, medicationID string) error
}

// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
// サービス層で型付きのNOT_FOUNDエラーに変換される。
var ErrNotFound = errors.New("repository: not found")
