package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/dosekeeper/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	APIToken          string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 薬管理
	MedicationService MedicationServiceInterface

	// ヘルスチェック用DB接続。nilの場合はDB疎通確認をスキップする。
	DB *sql.DB

	// Prometheusメトリクスのエクスポートハンドラー。nilの場合は公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → TokenAuth → RateLimit(General)
//
// /health と /metrics は認証・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	medHandler := NewMedicationHandler(deps.MedicationService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: TokenAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(deps.APIToken))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Route("/api/medications", func(r chi.Router) {
			r.Get("/", medHandler.ListMedications)

			// POST /api/medications - 薬の登録（登録専用レート制限を追加）
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.RegistrationMiddleware()).Post("/", medHandler.CreateMedication)
			} else {
				r.Post("/", medHandler.CreateMedication)
			}

			// 集計系は/{id}より先に定義された静的パスが優先される
			r.Get("/due-today", medHandler.ListDueToday)
			r.Get("/due-soon", medHandler.ListDueSoon)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", medHandler.GetMedication)
				r.Put("/", medHandler.UpdateMedication)
				r.Delete("/", medHandler.DeleteMedication)

				r.Post("/toggle", medHandler.ToggleMedication)

				r.Get("/taken", medHandler.GetTakenToday)
				r.Post("/taken", medHandler.MarkTaken)
				r.Delete("/taken", medHandler.UndoMarkTaken)

				r.Get("/next-dose", medHandler.GetNextDose)
			})
		})
	})

	return r
}

// healthHandler はヘルスチェックのハンドラーを返す。
// DB接続が設定されている場合は疎通確認も行う。
func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		statusCode := http.StatusOK

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				status = "unavailable"
				statusCode = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
