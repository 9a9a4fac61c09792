package callwatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTelegram(t *testing.T, handler http.HandlerFunc) *TelegramClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewTelegramClient("123:abc", "-100200", time.Second, testLogger())
	c.apiBase = srv.URL
	c.backoffs = []time.Duration{0, 0, 0} // no sleeping in tests
	return c
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}

	c := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	if err := c.SendMessage(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Fatalf("path: %s", gotPath)
	}
	if gotPayload["chat_id"] != "-100200" {
		t.Fatalf("chat_id: %v", gotPayload["chat_id"])
	}
	if gotPayload["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode: %v", gotPayload["parse_mode"])
	}
	if gotPayload["disable_web_page_preview"] != true {
		t.Fatalf("disable_web_page_preview: %v", gotPayload["disable_web_page_preview"])
	}
	if gotPayload["text"] != "<b>hi</b>" {
		t.Fatalf("text: %v", gotPayload["text"])
	}

	deliveries := c.RecentDeliveries()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].StatusCode != 200 || deliveries[0].ID == "" {
		t.Fatalf("unexpected delivery: %+v", deliveries[0])
	}
}

func TestSendMessageRefusesOpenAIKey(t *testing.T) {
	var hits int32
	c := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	c.botToken = "sk-not-a-bot-token"

	if err := c.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for sk- token")
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no request should have been made")
	}
}

func TestSendMessageRetries(t *testing.T) {
	var hits int32
	c := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	if err := c.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits)
	}

	deliveries := c.RecentDeliveries()
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 delivery records, got %d", len(deliveries))
	}
	if deliveries[0].ID != deliveries[1].ID {
		t.Fatal("retries should share a delivery id")
	}
	if deliveries[0].Attempt != 1 || deliveries[1].Attempt != 2 {
		t.Fatalf("attempts: %d, %d", deliveries[0].Attempt, deliveries[1].Attempt)
	}
}

func TestSendMessageExhaustsRetries(t *testing.T) {
	var hits int32
	c := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if err := c.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
}

func TestRecentDeliveriesCapped(t *testing.T) {
	c := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	for i := 0; i < maxRecentDeliveries+5; i++ {
		if err := c.SendMessage(context.Background(), "hi"); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	if got := len(c.RecentDeliveries()); got != maxRecentDeliveries {
		t.Fatalf("expected %d deliveries, got %d", maxRecentDeliveries, got)
	}
}
