package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/dosekeeper/internal/medication"
	"github.com/hitoshi/dosekeeper/internal/model"
)

// MedicationServiceInterface は薬ハンドラーが必要とするサービスインターフェース。
type MedicationServiceInterface interface {
	// Add は薬を新規登録する。
	Add(ctx context.Context, in medication.Input) (*model.Medication, error)
	// Update は薬の内容を更新する。
	Update(ctx context.Context, id string, in medication.Input) (*model.Medication, error)
	// Delete は薬を削除する。
	Delete(ctx context.Context, id string) error
	// ToggleActive は薬のアクティブ状態を反転する。
	ToggleActive(ctx context.Context, id string) (*model.Medication, error)
	// Get は指定IDの薬を取得する。
	Get(id string) (*model.Medication, error)
	// List は全薬を返す。
	List() []*model.Medication
	// DueToday は今日服用予定が残っている薬を返す。
	DueToday() []*model.Medication
	// DueSoon は指定時間内に次の服用予定がある薬を返す。
	DueSoon(window time.Duration) []*model.Medication
	// MarkTaken は今日の服用を1回分記録する。
	MarkTaken(ctx context.Context, id string) error
	// UndoMarkTaken は今日の最新の服用記録を取り消す。
	UndoMarkTaken(ctx context.Context, id string) error
	// NextDoseTime は次の服用予定時刻を返す。
	NextDoseTime(id string) (time.Time, bool, error)
	// TakenToday は今日の服用タイムスタンプを返す。
	TakenToday(id string) ([]time.Time, error)
}

// MedicationHandler は薬管理のHTTPハンドラー。
type MedicationHandler struct {
	service MedicationServiceInterface
}

// NewMedicationHandler はMedicationHandlerを生成する。
func NewMedicationHandler(service MedicationServiceInterface) *MedicationHandler {
	return &MedicationHandler{service: service}
}

// medicationRequest は薬の登録・更新リクエストのボディ。
type medicationRequest struct {
	Name       string `json:"name"`
	Dosage     string `json:"dosage"`
	Frequency  int    `json:"frequency"`
	DaysOfWeek []int  `json:"days_of_week"`
	Notes      string `json:"notes"`
}

// medicationResponse は薬情報のAPIレスポンス。
type medicationResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Dosage     string    `json:"dosage"`
	Frequency  int       `json:"frequency"`
	DaysOfWeek []int     `json:"days_of_week"`
	IsActive   bool      `json:"is_active"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// nextDoseResponse は次の服用予定時刻のAPIレスポンス。
// 今日の残り予定がない場合、next_dose_timeはnullになる。
type nextDoseResponse struct {
	NextDoseTime *time.Time `json:"next_dose_time"`
}

// takenTodayResponse は今日の服用記録のAPIレスポンス。
type takenTodayResponse struct {
	TakenAt []time.Time `json:"taken_at"`
	Count   int         `json:"count"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListMedications は全薬の一覧を返す。
// GET /api/medications
func (h *MedicationHandler) ListMedications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toMedicationResponses(h.service.List()))
}

// CreateMedication は薬の新規登録を処理する。
// POST /api/medications
func (h *MedicationHandler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeMedicationRequest(w, r)
	if !ok {
		return
	}

	med, err := h.service.Add(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMedicationResponse(med))
}

// GetMedication は薬の詳細を取得する。
// GET /api/medications/:id
func (h *MedicationHandler) GetMedication(w http.ResponseWriter, r *http.Request) {
	med, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMedicationResponse(med))
}

// UpdateMedication は薬の内容を更新する。
// PUT /api/medications/:id
func (h *MedicationHandler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeMedicationRequest(w, r)
	if !ok {
		return
	}

	med, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMedicationResponse(med))
}

// DeleteMedication は薬を削除する。
// DELETE /api/medications/:id
func (h *MedicationHandler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleMedication は薬のアクティブ状態を反転する。
// POST /api/medications/:id/toggle
func (h *MedicationHandler) ToggleMedication(w http.ResponseWriter, r *http.Request) {
	med, err := h.service.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMedicationResponse(med))
}

// MarkTaken は今日の服用を1回分記録する。
// POST /api/medications/:id/taken
func (h *MedicationHandler) MarkTaken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.MarkTaken(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeTakenToday(w, id)
}

// UndoMarkTaken は今日の最新の服用記録を取り消す。
// DELETE /api/medications/:id/taken
func (h *MedicationHandler) UndoMarkTaken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.UndoMarkTaken(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeTakenToday(w, id)
}

// GetTakenToday は今日の服用記録を取得する。
// GET /api/medications/:id/taken
func (h *MedicationHandler) GetTakenToday(w http.ResponseWriter, r *http.Request) {
	h.writeTakenToday(w, chi.URLParam(r, "id"))
}

// GetNextDose は次の服用予定時刻を取得する。
// GET /api/medications/:id/next-dose
func (h *MedicationHandler) GetNextDose(w http.ResponseWriter, r *http.Request) {
	next, found, err := h.service.NextDoseTime(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var resp nextDoseResponse
	if found {
		resp.NextDoseTime = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDueToday は今日服用予定が残っている薬の一覧を返す。
// GET /api/medications/due-today
func (h *MedicationHandler) ListDueToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toMedicationResponses(h.service.DueToday()))
}

// ListDueSoon は間もなく服用予定の薬の一覧を返す。
// GET /api/medications/due-soon?window=1h
func (h *MedicationHandler) ListDueSoon(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "windowパラメータの解析に失敗しました。",
				Category: "validation",
				Action:   "1h、30mのような正のDuration形式で指定してください。",
			})
			return
		}
		window = parsed
	}

	writeJSON(w, http.StatusOK, toMedicationResponses(h.service.DueSoon(window)))
}

// writeTakenToday は今日の服用記録レスポンスを書き込む。
func (h *MedicationHandler) writeTakenToday(w http.ResponseWriter, id string) {
	taken, err := h.service.TakenToday(id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if taken == nil {
		taken = []time.Time{}
	}
	writeJSON(w, http.StatusOK, takenTodayResponse{TakenAt: taken, Count: len(taken)})
}

// --- ヘルパー関数 ---

// decodeMedicationRequest はリクエストボディを解析してサービス入力に変換する。
// 解析に失敗した場合はエラーレスポンスを書き込み、falseを返す。
func decodeMedicationRequest(w http.ResponseWriter, r *http.Request) (medication.Input, bool) {
	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return medication.Input{}, false
	}

	return medication.Input{
		Name:       req.Name,
		Dosage:     req.Dosage,
		Frequency:  req.Frequency,
		DaysOfWeek: req.DaysOfWeek,
		Notes:      req.Notes,
	}, true
}

// toMedicationResponse はmodel.MedicationからAPIレスポンスに変換する。
func toMedicationResponse(med *model.Medication) medicationResponse {
	return medicationResponse{
		ID:         med.ID,
		Name:       med.Name,
		Dosage:     med.Dosage,
		Frequency:  med.Frequency,
		DaysOfWeek: med.DaysOfWeek,
		IsActive:   med.IsActive,
		Notes:      med.Notes,
		CreatedAt:  med.CreatedAt,
		UpdatedAt:  med.UpdatedAt,
	}
}

// toMedicationResponses は薬のスライスをAPIレスポンスに変換する。
// 空の場合もnullではなく空配列を返す。
func toMedicationResponses(meds []*model.Medication) []medicationResponse {
	result := make([]medicationResponse, 0, len(meds))
	for _, med := range meds {
		result = append(result, toMedicationResponse(med))
	}
	return result
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeMedicationNotFound:
		return http.StatusNotFound
	case model.ErrCodeAllDosesTaken, model.ErrCodeNoDosesTaken:
		return http.StatusConflict
	case model.ErrCodePersistenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
