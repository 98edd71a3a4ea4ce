package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/dosekeeper/internal/model"
)

// PostgresMedicationRepo はPostgreSQLを使用した薬リポジトリ。
type PostgresMedicationRepo struct {
	db *sql.DB
}

// NewPostgresMedicationRepo はPostgresMedicationRepoを生成する。
func NewPostgresMedicationRepo(db *sql.DB) *PostgresMedicationRepo {
	return &PostgresMedicationRepo{db: db}
}

// Insert は薬を新規作成する。
func (r *PostgresMedicationRepo) Insert(ctx context.Context, med *model.Medication) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO medications (id, name, dosage, frequency, days_of_week,
		                          is_active, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		med.ID, med.Name, med.Dosage, med.Frequency, pq.Array(med.DaysOfWeek),
		med.IsActive, med.Notes, med.CreatedAt, med.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("薬の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は薬を更新する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresMedicationRepo) Update(ctx context.Context, med *model.Medication) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE medications SET
		    name = $2, dosage = $3, frequency = $4, days_of_week = $5,
		    is_active = $6, notes = $7, updated_at = $8
		 WHERE id = $1`,
		med.ID, med.Name, med.Dosage, med.Frequency, pq.Array(med.DaysOfWeek),
		med.IsActive, med.Notes, med.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("薬の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は指定IDの薬を削除する。対象が存在しない場合はErrNotFoundを返す。
// taken_historyはCASCADE削除により自動的に削除される。
func (r *PostgresMedicationRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM medications WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("薬の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAll は全薬を作成日時昇順で返す。
func (r *PostgresMedicationRepo) ListAll(ctx context.Context) ([]*model.Medication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, dosage, frequency, days_of_week,
		        is_active, notes, created_at, updated_at
		 FROM medications
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("薬一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var meds []*model.Medication
	for rows.Next() {
		med := &model.Medication{}
		var days pq.Int64Array
		if err := rows.Scan(
			&med.ID, &med.Name, &med.Dosage, &med.Frequency, &days,
			&med.IsActive, &med.Notes, &med.CreatedAt, &med.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("薬の読み取りに失敗しました: %w", err)
		}
		med.DaysOfWeek = make([]int, len(days))
		for i, d := range days {
			med.DaysOfWeek[i] = int(d)
		}
		meds = append(meds, med)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("薬一覧の走査に失敗しました: %w", err)
	}

	return meds, nil
}
