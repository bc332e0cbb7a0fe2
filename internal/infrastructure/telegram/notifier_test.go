package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sitbrief/internal/config"
)

func TestNotifierPostsMessage(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotPath, gotChat, gotText = r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{TelegramBotToken: "123:abc", TelegramChatID: "-42"}).WithAPIBase(srv.URL)
	if err := n.Notify(context.Background(), "Brief published"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotPath != "/bot123:abc/sendMessage" || gotChat != "-42" || gotText != "Brief published" {
		t.Fatalf("unexpected request path=%q chat=%q text=%q", gotPath, gotChat, gotText)
	}
}

func TestNotifierErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier(config.NotifyConfig{}).Notify(context.Background(), "x"); err == nil {
		t.Fatal("expected misconfiguration error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{TelegramBotToken: "t", TelegramChatID: "c"}).WithAPIBase(srv.URL)
	err := n.Notify(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
}
