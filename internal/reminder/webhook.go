package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSender はリマインダーをユーザー設定のWebhook URLへJSONでPOSTする。
// 配信先は外部URLのため、SSRF防止付きのHTTPクライアントを注入すること。
type WebhookSender struct {
	client  *http.Client
	url     string
	maxSize int64
}

// NewWebhookSender はWebhookSenderを生成する。
// maxSizeはレスポンスボディの最大読み取りバイト数。0以下の場合は1MiBを使用する。
func NewWebhookSender(client *http.Client, url string, maxSize int64) *WebhookSender {
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	return &WebhookSender{
		client:  client,
		url:     url,
		maxSize: maxSize,
	}
}

// webhookPayload はWebhook配信のリクエストボディ。
type webhookPayload struct {
	ID           string            `json:"id"`
	MedicationID string            `json:"medication_id"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// Send はリマインダーをWebhook URLへPOSTする。
// 2xx以外のステータスはエラーとして報告する。
func (s *WebhookSender) Send(ctx context.Context, r Reminder) error {
	body, err := json.Marshal(webhookPayload{
		ID:           r.ID,
		MedicationID: r.MedicationID,
		Title:        r.Title,
		Body:         r.Body,
		ScheduledAt:  r.At,
		Payload:      r.Payload,
	})
	if err != nil {
		return fmt.Errorf("リマインダーペイロードの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Webhookリクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Webhook配信に失敗しました: %w", err)
	}
	defer resp.Body.Close()
	// コネクション再利用のためボディを読み捨てる。サイズは上限付き。
	io.Copy(io.Discard, io.LimitReader(resp.Body, s.maxSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Webhook配信先がエラーを返しました: status %d", resp.StatusCode)
	}
	return nil
}

// LogSender はWebhook未設定時のフォールバック配信。
// リマインダーを構造化ログに出力するのみで、常に成功する。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send はリマインダーをログに出力する。
func (s *LogSender) Send(ctx context.Context, r Reminder) error {
	s.logger.Info("服用リマインダー",
		slog.String("reminder_id", r.ID),
		slog.String("medication_id", r.MedicationID),
		slog.String("title", r.Title),
		slog.String("body", r.Body),
		slog.Time("scheduled_at", r.At),
	)
	return nil
}
