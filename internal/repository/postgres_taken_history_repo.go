package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/dosekeeper/internal/model"
)

// PostgresTakenHistoryRepo はPostgreSQLを使用した服用履歴リポジトリ。
type PostgresTakenHistoryRepo struct {
	db *sql.DB
}

// NewPostgresTakenHistoryRepo はPostgresTakenHistoryRepoを生成する。
func NewPostgresTakenHistoryRepo(db *sql.DB) *PostgresTakenHistoryRepo {
	return &PostgresTakenHistoryRepo{db: db}
}

// ListAll は全服用履歴をtaken_at昇順で返す。
func (r *PostgresTakenHistoryRepo) ListAll(ctx context.Context) ([]model.TakenRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT medication_id, taken_at
		 FROM taken_history
		 ORDER BY taken_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("服用履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.TakenRecord
	for rows.Next() {
		var rec model.TakenRecord
		if err := rows.Scan(&rec.MedicationID, &rec.TakenAt); err != nil {
			return nil, fmt.Errorf("服用履歴の読み取りに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("服用履歴の走査に失敗しました: %w", err)
	}

	return records, nil
}

// ReplaceForMedication は指定された薬の履歴を同一トランザクションで入れ替える。
// 削除と挿入が両方成功した場合のみコミットされるため、部分的な
// 書き換えでメモリ上のLedgerと食い違うことはない。
func (r *PostgresTakenHistoryRepo) ReplaceForMedication(ctx context.Context, medicationID string, records []model.TakenRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM taken_history WHERE medication_id = $1`, medicationID,
	); err != nil {
		return fmt.Errorf("服用履歴の削除に失敗しました: %w", err)
	}

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taken_history (medication_id, taken_at) VALUES ($1, $2)`,
			medicationID, rec.TakenAt,
		); err != nil {
			return fmt.Errorf("服用履歴の挿入に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("服用履歴のコミットに失敗しました: %w", err)
	}
	return nil
}

// DeleteByMedication は指定された薬の全履歴を削除する。
// 対象が0件でもエラーにならない（冪等）。
func (r *PostgresTakenHistoryRepo) DeleteByMedication(ctx context.Context, medicationID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM taken_history WHERE medication_id = $1`, medicationID,
	); err != nil {
		return fmt.Errorf("服用履歴の削除に失敗しました: %w", err)
	}
	return nil
}
