package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/dosekeeper/internal/config"
	"github.com/hitoshi/dosekeeper/internal/database"
	"github.com/hitoshi/dosekeeper/internal/handler"
	"github.com/hitoshi/dosekeeper/internal/logger"
	"github.com/hitoshi/dosekeeper/internal/medication"
	"github.com/hitoshi/dosekeeper/internal/metrics"
	"github.com/hitoshi/dosekeeper/internal/middleware"
	"github.com/hitoshi/dosekeeper/internal/reminder"
	"github.com/hitoshi/dosekeeper/internal/repository"
	"github.com/hitoshi/dosekeeper/internal/security"
	"github.com/hitoshi/dosekeeper/internal/worker/dispatch"
	"github.com/hitoshi/dosekeeper/internal/worker/resync"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newCoordinator はDB接続済みの服薬コーディネーターとリマインダーキューを構築する。
// serveとworkerの両モードで共通のワイヤリング。
func newCoordinator(db *sql.DB, collector *metrics.Collector) (*medication.Service, *reminder.Queue) {
	medRepo := repository.NewPostgresMedicationRepo(db)
	historyRepo := repository.NewPostgresTakenHistoryRepo(db)
	sanitizer := security.NewTextSanitizer()
	queue := reminder.NewQueue()

	svc := medication.NewService(medRepo, historyRepo, queue, sanitizer, collector, slog.Default())
	return svc, queue
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスとコーディネーターの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	svc, _ := newCoordinator(db, collector)

	// 3. 服薬データの読み込みとリマインダーの再同期
	if err := svc.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load medication data: %w", err)
	}

	// 4. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.RegisterRate = rate.Limit(float64(cfg.RateLimitRegister) / 60.0)
	rateLimiterCfg.RegisterBurst = cfg.RateLimitRegister

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		APIToken:          cfg.APIToken,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		MedicationService: svc,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はリマインダー配信ワーカーモードで起動する。
// 服薬データを読み込んでリマインダーをスケジュールし、配信ループと
// 定期再同期ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクスとコーディネーターの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	svc, queue := newCoordinator(db, collector)

	// 3. 服薬データの読み込みとリマインダーのスケジュール
	if err := svc.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load medication data: %w", err)
	}

	// 4. 配信先の初期化
	// Webhook URLが設定されている場合はSSRF防止付きクライアントで配信し、
	// 未設定の場合は構造化ログへのフォールバック配信を行う。
	var sender reminder.Sender
	if cfg.WebhookURL != "" {
		guard := security.NewSSRFGuard()
		if err := guard.ValidateURL(cfg.WebhookURL); err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}
		client := guard.NewSafeClient(cfg.WebhookTimeout)
		sender = reminder.NewWebhookSender(client, cfg.WebhookURL, cfg.WebhookMaxSize)
	} else {
		sender = reminder.NewLogSender(slog.Default())
	}

	// 5. スケジューラと再同期ジョブの初期化
	scheduler := dispatch.NewScheduler(queue, sender, slog.Default(), collector, cfg.DispatchMaxConcurrent)
	resyncJob := resync.NewJob(svc, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("dispatch_interval", cfg.DispatchInterval),
		slog.Duration("resync_interval", cfg.ResyncInterval),
		slog.Int("max_concurrent", cfg.DispatchMaxConcurrent),
		slog.Bool("webhook_enabled", cfg.WebhookURL != ""),
	)

	// 再同期ジョブをバックグラウンドで起動
	go resyncJob.Start(ctx, cfg.ResyncInterval)

	// 配信スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.DispatchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
