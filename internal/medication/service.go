// Package medication は服薬管理のドメインロジックを提供する。
// 薬のCRUD、服用記録、服用予定の問い合わせ、およびリマインダーの
// 再同期を単一のコーディネーターに集約する。
package medication

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dosekeeper/internal/ledger"
	"github.com/hitoshi/dosekeeper/internal/model"
	"github.com/hitoshi/dosekeeper/internal/reminder"
	"github.com/hitoshi/dosekeeper/internal/repository"
	"github.com/hitoshi/dosekeeper/internal/schedule"
	"github.com/hitoshi/dosekeeper/internal/security"
)

// DefaultDueSoonWindow はDueSoonのデフォルトの先読み幅。
const DefaultDueSoonWindow = time.Hour

// MetricsCollector はコーディネーターが記録するメトリクスのインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type MetricsCollector interface {
	RecordReminderScheduled(count int)
	RecordReminderCancelled(count int)
	RecordDoseTaken(medicationID string)
	RecordDoseUndone(medicationID string)
	RecordPersistenceFailure(op string)
}

// Service は服薬管理のコーディネーター。
// メモリ上の薬一覧と服用記録を専有し、すべての書き込みはこの層を経由する。
// メモリ上の状態は永続化が成功した後にのみ更新されるため、永続化失敗時に
// メモリだけが先行することはない。
//
// 内部で排他制御は行わない。読み取りはメモリ上のスナップショットを返すが、
// 変更操作の呼び出しはホスト側で直列化すること。
type Service struct {
	medRepo     repository.MedicationRepository
	historyRepo repository.TakenHistoryRepository
	dispatcher  reminder.Dispatcher
	sanitizer   security.TextSanitizerService
	collector   MetricsCollector
	logger      *slog.Logger
	now         func() time.Time

	meds map[string]*model.Medication
	// scheduled は薬IDごとの登録済みリマインダーID。
	// 対象限定の取り消しに使用する。
	scheduled map[string][]string
	ledger    *ledger.Ledger
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorはnil許容（メトリクス記録をスキップする）。
func NewService(
	medRepo repository.MedicationRepository,
	historyRepo repository.TakenHistoryRepository,
	dispatcher reminder.Dispatcher,
	sanitizer security.TextSanitizerService,
	collector MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		medRepo:     medRepo,
		historyRepo: historyRepo,
		dispatcher:  dispatcher,
		sanitizer:   sanitizer,
		collector:   collector,
		logger:      logger,
		now:         time.Now,
		meds:        make(map[string]*model.Medication),
		scheduled:   make(map[string][]string),
		ledger:      ledger.New(),
	}
}

// Input は薬の作成・更新の入力値。
type Input struct {
	Name       string
	Dosage     string
	Frequency  int
	DaysOfWeek []int
	Notes      string
}

// Load は全薬と全服用履歴をストアから読み込み、メモリ上の状態を置き換える。
// その後、全リマインダーを取り消してアクティブな薬の分を再登録する。
func (s *Service) Load(ctx context.Context) error {
	meds, err := s.medRepo.ListAll(ctx)
	if err != nil {
		return s.persistenceFailed("load", err)
	}
	history, err := s.historyRepo.ListAll(ctx)
	if err != nil {
		return s.persistenceFailed("load", err)
	}

	s.meds = make(map[string]*model.Medication, len(meds))
	for _, med := range meds {
		s.meds[med.ID] = med
	}
	s.ledger.Replace(history)

	// 全取り消し + 全再登録でディスパッチャーの状態を現状に一致させる
	s.scheduled = make(map[string][]string)
	if err := s.dispatcher.CancelAll(ctx); err != nil {
		s.logger.Error("リマインダーの全取り消しに失敗しました",
			slog.String("error", err.Error()),
		)
	}
	for _, med := range s.meds {
		s.scheduleReminders(ctx, med)
	}

	s.logger.Info("服薬データを読み込みました",
		slog.Int("medication_count", len(s.meds)),
		slog.Int("history_count", len(history)),
	)
	return nil
}

// Add は薬を新規登録する。
// 検証に失敗した場合は永続化前に型付きのVALIDATIONエラーを返す。
// 登録された薬がアクティブな場合はリマインダーをスケジュールする。
func (s *Service) Add(ctx context.Context, in Input) (*model.Medication, error) {
	med, err := s.buildMedication(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	med.ID = uuid.NewString()
	med.IsActive = true
	med.CreatedAt = now
	med.UpdatedAt = now

	if err := s.medRepo.Insert(ctx, med); err != nil {
		return nil, s.persistenceFailed("add", err)
	}

	s.meds[med.ID] = med
	s.scheduleReminders(ctx, med)

	s.logger.Info("薬を登録しました",
		slog.String("medication_id", med.ID),
		slog.String("name", med.Name),
	)
	return med.Clone(), nil
}

// Update は薬の内容を更新する。
// 未知のIDにはNOT_FOUNDを返し、一切の変更を行わない。
// 既存のリマインダーを取り消し、アクティブなら新しいルールで再登録する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Medication, error) {
	current, ok := s.meds[id]
	if !ok {
		return nil, model.NewMedicationNotFoundError(id)
	}

	med, err := s.buildMedication(in)
	if err != nil {
		return nil, err
	}
	med.ID = current.ID
	med.IsActive = current.IsActive
	med.CreatedAt = current.CreatedAt

	return s.applyUpdate(ctx, med)
}

// ToggleActive は薬のアクティブ状態を反転する。
// 更新経路を通すことで、リマインダーの再同期がアクティブフラグと
// 常に整合する。
func (s *Service) ToggleActive(ctx context.Context, id string) (*model.Medication, error) {
	current, ok := s.meds[id]
	if !ok {
		return nil, model.NewMedicationNotFoundError(id)
	}

	med := current.Clone()
	med.IsActive = !med.IsActive
	return s.applyUpdate(ctx, med)
}

// applyUpdate は変更後の薬を永続化し、成功後にメモリと
// リマインダーを更新する。
func (s *Service) applyUpdate(ctx context.Context, med *model.Medication) (*model.Medication, error) {
	med.UpdatedAt = s.now()

	if err := s.medRepo.Update(ctx, med); err != nil {
		if err == repository.ErrNotFound {
			return nil, model.NewMedicationNotFoundError(med.ID)
		}
		return nil, s.persistenceFailed("update", err)
	}

	s.meds[med.ID] = med
	s.cancelReminders(ctx, med.ID)
	s.scheduleReminders(ctx, med)

	return med.Clone(), nil
}

// Delete は薬を削除する。
// 未知のIDにはNOT_FOUNDを返す。削除に成功するとリマインダーの取り消しと
// 服用記録の削除が行われ、以後のLoadで復活することはない。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, ok := s.meds[id]; !ok {
		return model.NewMedicationNotFoundError(id)
	}

	if err := s.medRepo.Delete(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return model.NewMedicationNotFoundError(id)
		}
		return s.persistenceFailed("delete", err)
	}
	// taken_historyはCASCADE削除されるが、ストア契約としては明示的な
	// 削除も冪等に通る
	if err := s.historyRepo.DeleteByMedication(ctx, id); err != nil {
		s.logger.Error("服用履歴の削除に失敗しました",
			slog.String("medication_id", id),
			slog.String("error", err.Error()),
		)
	}

	delete(s.meds, id)
	s.ledger.Purge(id)
	s.cancelReminders(ctx, id)

	s.logger.Info("薬を削除しました", slog.String("medication_id", id))
	return nil
}

// Get は指定IDの薬のコピーを返す。未知のIDにはNOT_FOUNDを返す。
func (s *Service) Get(id string) (*model.Medication, error) {
	med, ok := s.meds[id]
	if !ok {
		return nil, model.NewMedicationNotFoundError(id)
	}
	return med.Clone(), nil
}

// List は全薬のコピーを作成日時昇順で返す。
func (s *Service) List() []*model.Medication {
	result := make([]*model.Medication, 0, len(s.meds))
	for _, med := range s.meds {
		result = append(result, med.Clone())
	}
	sortMedications(result)
	return result
}

// DueToday は今日服用予定が残っている薬を返す。
// アクティブかつ今日が服用曜日で、今日の服用記録件数がFrequency未満の
// 薬のみが含まれる。判定は記録件数ベースで、スロットの時刻近接マッチとは
// 独立している。
func (s *Service) DueToday() []*model.Medication {
	now := s.now()

	var result []*model.Medication
	for _, med := range s.meds {
		if s.isDueOn(med, now) {
			result = append(result, med.Clone())
		}
	}
	sortMedications(result)
	return result
}

// DueSoon はDueTodayのうち、次の未服用スロットが[now, now+window)に
// 収まる薬を返す。windowが0以下の場合はDefaultDueSoonWindowを使用する。
func (s *Service) DueSoon(window time.Duration) []*model.Medication {
	if window <= 0 {
		window = DefaultDueSoonWindow
	}
	now := s.now()
	limit := now.Add(window)

	var result []*model.Medication
	for _, med := range s.meds {
		if !s.isDueOn(med, now) {
			continue
		}
		next, ok := schedule.NextDoseTime(med, now, s.ledger.TakenOn(med.ID, now))
		if !ok || next.Before(now) || !next.Before(limit) {
			continue
		}
		result = append(result, med.Clone())
	}
	sortMedications(result)
	return result
}

// MarkTaken は今日の服用を1回分記録する。
// 今日の記録件数がFrequencyに達している場合はALL_DOSES_TAKENを返し、
// 一切の変更を行わない。1日分の服用を超過して記録することはできない。
func (s *Service) MarkTaken(ctx context.Context, id string) error {
	med, ok := s.meds[id]
	if !ok {
		return model.NewMedicationNotFoundError(id)
	}

	now := s.now()
	if s.ledger.CountOn(id, now) >= med.Frequency {
		return model.NewAllDosesTakenError(med.Name)
	}

	// 永続化が成功した場合のみメモリ上のLedgerを更新する
	records := append(s.ledger.ForMedication(id), model.TakenRecord{
		MedicationID: id,
		TakenAt:      now,
	})
	if err := s.historyRepo.ReplaceForMedication(ctx, id, records); err != nil {
		return s.persistenceFailed("mark_taken", err)
	}

	s.ledger.Record(id, now)
	if s.collector != nil {
		s.collector.RecordDoseTaken(id)
	}

	s.logger.Info("服用を記録しました",
		slog.String("medication_id", id),
		slog.Int("taken_today", s.ledger.CountOn(id, now)),
		slog.Int("frequency", med.Frequency),
	)
	return nil
}

// UndoMarkTaken は今日の最新の服用記録1件を取り消す。
// 今日の記録が存在しない場合はNO_DOSES_TAKENを返す。
// 取り消しの対象はタイムスタンプ上の最新であり、スロットとの近接性では
// 選ばれない。直前のMarkTakenの純粋な逆操作となる。
func (s *Service) UndoMarkTaken(ctx context.Context, id string) error {
	med, ok := s.meds[id]
	if !ok {
		return model.NewMedicationNotFoundError(id)
	}

	now := s.now()
	if s.ledger.CountOn(id, now) == 0 {
		return model.NewNoDosesTakenError(med.Name)
	}

	records := s.ledger.ForMedication(id)
	latest := -1
	for i, rec := range records {
		if model.SameDate(rec.TakenAt, now) {
			latest = i
		}
	}
	remaining := append(records[:latest:latest], records[latest+1:]...)

	if err := s.historyRepo.ReplaceForMedication(ctx, id, remaining); err != nil {
		return s.persistenceFailed("undo_mark_taken", err)
	}

	s.ledger.RemoveMostRecentOn(id, now)
	if s.collector != nil {
		s.collector.RecordDoseUndone(id)
	}

	s.logger.Info("服用記録を取り消しました",
		slog.String("medication_id", id),
		slog.Int("taken_today", s.ledger.CountOn(id, now)),
	)
	return nil
}

// NextDoseTime は今日の服用予定のうち、未来かつ未服用（前後30分の
// 近接マッチで判定）の最初の時刻を返す。該当がない場合はfalseを返す。
func (s *Service) NextDoseTime(id string) (time.Time, bool, error) {
	med, ok := s.meds[id]
	if !ok {
		return time.Time{}, false, model.NewMedicationNotFoundError(id)
	}

	now := s.now()
	next, found := schedule.NextDoseTime(med, now, s.ledger.TakenOn(id, now))
	return next, found, nil
}

// SlotsForToday は今日のDoseSlot一覧を返す。未知のIDにはNOT_FOUNDを返す。
func (s *Service) SlotsForToday(id string) ([]model.DoseSlot, error) {
	med, ok := s.meds[id]
	if !ok {
		return nil, model.NewMedicationNotFoundError(id)
	}

	now := s.now()
	return schedule.SlotsForDate(med, now, s.ledger.TakenOn(id, now)), nil
}

// TakenToday は今日の服用タイムスタンプを昇順で返す。
func (s *Service) TakenToday(id string) ([]time.Time, error) {
	if _, ok := s.meds[id]; !ok {
		return nil, model.NewMedicationNotFoundError(id)
	}
	return s.ledger.TakenOn(id, s.now()), nil
}

// isDueOn はアクティブ・曜日・記録件数による服用予定の判定を行う。
func (s *Service) isDueOn(med *model.Medication, date time.Time) bool {
	if !med.IsActive {
		return false
	}
	if !med.HasWeekday(model.ISOWeekday(date)) {
		return false
	}
	return s.ledger.CountOn(med.ID, date) < med.Frequency
}

// buildMedication は入力値を検証・サニタイズしてMedicationを構築する。
// 不正な入力は修復せず、そのまま拒否する。
func (s *Service) buildMedication(in Input) (*model.Medication, error) {
	name := s.sanitizer.Sanitize(in.Name)
	dosage := s.sanitizer.Sanitize(in.Dosage)
	notes := s.sanitizer.Sanitize(in.Notes)

	if name == "" {
		return nil, model.NewValidationError("薬の名前が空です")
	}
	if dosage == "" {
		return nil, model.NewValidationError("用量が空です")
	}
	if in.Frequency < 1 {
		return nil, model.NewValidationError(fmt.Sprintf("服用回数は1以上が必要です: %d", in.Frequency))
	}
	if len(in.DaysOfWeek) == 0 {
		return nil, model.NewValidationError("服用曜日が空です")
	}

	seen := make(map[int]bool)
	days := make([]int, 0, len(in.DaysOfWeek))
	for _, d := range in.DaysOfWeek {
		if d < 1 || d > 7 {
			return nil, model.NewValidationError(fmt.Sprintf("曜日番号は1〜7の範囲が必要です: %d", d))
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)

	return &model.Medication{
		Name:       name,
		Dosage:     dosage,
		Frequency:  in.Frequency,
		DaysOfWeek: days,
		Notes:      notes,
	}, nil
}

// scheduleReminders はアクティブな薬の未来の服用予定をディスパッチャーへ
// 登録する。リマインダーIDは(薬ID, 予定時刻)から決定的に導出されるため、
// 変わらないスロットの再登録はディスパッチャー側で冪等になる。
// 配信系の失敗はログとメトリクスに記録するのみで、呼び出し元の
// 変更操作を失敗させない。
func (s *Service) scheduleReminders(ctx context.Context, med *model.Medication) {
	if !med.IsActive {
		return
	}

	slots := schedule.UpcomingSlots(med, s.now())
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		id := schedule.ReminderID(med.ID, slot.ScheduledTime)
		err := s.dispatcher.Schedule(ctx, reminder.Reminder{
			ID:           id,
			MedicationID: med.ID,
			Title:        fmt.Sprintf("服用リマインダー: %s", med.Name),
			Body:         fmt.Sprintf("%s %s を服用してください。", med.Name, med.Dosage),
			At:           slot.ScheduledTime,
			Payload:      map[string]string{"medication_id": med.ID},
		})
		if err != nil {
			s.logger.Error("リマインダーの登録に失敗しました",
				slog.String("medication_id", med.ID),
				slog.String("reminder_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		ids = append(ids, id)
	}

	s.scheduled[med.ID] = ids
	if s.collector != nil {
		s.collector.RecordReminderScheduled(len(ids))
	}
}

// cancelReminders は指定された薬の登録済みリマインダーをすべて取り消す。
func (s *Service) cancelReminders(ctx context.Context, medicationID string) {
	ids := s.scheduled[medicationID]
	for _, id := range ids {
		if err := s.dispatcher.Cancel(ctx, id); err != nil {
			s.logger.Error("リマインダーの取り消しに失敗しました",
				slog.String("medication_id", medicationID),
				slog.String("reminder_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	delete(s.scheduled, medicationID)
	if s.collector != nil && len(ids) > 0 {
		s.collector.RecordReminderCancelled(len(ids))
	}
}

// persistenceFailed はストアのエラーをログとメトリクスに記録し、
// 型付きのPERSISTENCE_FAILUREエラーへ変換する。
func (s *Service) persistenceFailed(op string, err error) error {
	s.logger.Error("永続化に失敗しました",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	if s.collector != nil {
		s.collector.RecordPersistenceFailure(op)
	}
	return model.NewPersistenceError(op)
}

// sortMedications は作成日時昇順（同時刻はID昇順）で整列する。
func sortMedications(meds []*model.Medication) {
	sort.Slice(meds, func(i, j int) bool {
		if meds[i].CreatedAt.Equal(meds[j].CreatedAt) {
			return meds[i].ID < meds[j].ID
		}
		return meds[i].CreatedAt.Before(meds[j].CreatedAt)
	})
}
