package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestWebhookSender_Send はWebhook配信のリクエスト内容を検証する。
func TestWebhookSender_Send(t *testing.T) {
	var gotBody webhookPayload
	var gotContentType string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	at := time.Date(2025, 1, 8, 15, 0, 0, 0, time.UTC)
	sender := NewWebhookSender(ts.Client(), ts.URL, 1<<20)

	err := sender.Send(context.Background(), Reminder{
		ID:           "med-1:123",
		MedicationID: "med-1",
		Title:        "服用リマインダー: アスピリン",
		Body:         "アスピリン 100mg を服用してください。",
		At:           at,
		Payload:      map[string]string{"medication_id": "med-1"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", gotContentType, "application/json")
	}
	if gotBody.ID != "med-1:123" {
		t.Errorf("payload.ID = %q, want %q", gotBody.ID, "med-1:123")
	}
	if gotBody.MedicationID != "med-1" {
		t.Errorf("payload.MedicationID = %q, want %q", gotBody.MedicationID, "med-1")
	}
	if !gotBody.ScheduledAt.Equal(at) {
		t.Errorf("payload.ScheduledAt = %v, want %v", gotBody.ScheduledAt, at)
	}
	if gotBody.Payload["medication_id"] != "med-1" {
		t.Errorf("payload.Payload[medication_id] = %q, want %q", gotBody.Payload["medication_id"], "med-1")
	}
}

// TestWebhookSender_Send_NonSuccessStatus は2xx以外のステータスがエラーになることを検証する。
func TestWebhookSender_Send_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sender := NewWebhookSender(ts.Client(), ts.URL, 1<<20)

	err := sender.Send(context.Background(), testReminder("med-1:1", "med-1", time.Now()))
	if err == nil {
		t.Fatal("expected error for non-2xx status, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want to contain status 500", err)
	}
}

// TestLogSender_Send はログ配信が常に成功しリマインダーIDを含むことを検証する。
func TestLogSender_Send(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sender := NewLogSender(logger)

	err := sender.Send(context.Background(), testReminder("med-1:42", "med-1", time.Now()))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if !strings.Contains(buf.String(), "med-1:42") {
		t.Errorf("log output should contain reminder id, got: %s", buf.String())
	}
}
