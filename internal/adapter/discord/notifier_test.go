package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guildhost/guildhost/internal/port/notifier"
)

func TestSendBuildsEmbed(t *testing.T) {
	var got discordWebhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Bot suspended",
		Message: "Your bot instance has been suspended.",
		Level:   "warning",
		Source:  "bot.suspended",
		GuildID: "guild1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(got.Embeds))
	}
	embed := got.Embeds[0]
	if embed.Title != "Bot suspended" || embed.Color != 0xF39C12 {
		t.Fatalf("unexpected embed: %+v", embed)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Name != "Guild" || embed.Fields[0].Value != "guild1" {
		t.Fatalf("unexpected fields: %+v", embed.Fields)
	}
	if embed.Footer == nil || embed.Footer.Text != "Event: bot.suspended" {
		t.Fatalf("unexpected footer: %+v", embed.Footer)
	}
}

func TestSendOmitsEmptyOptionalParts(t *testing.T) {
	var got discordWebhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	if err := n.Send(context.Background(), notifier.Notification{Title: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	embed := got.Embeds[0]
	if len(embed.Fields) != 0 || embed.Footer != nil {
		t.Fatalf("optional parts must be omitted: %+v", embed)
	}
	if embed.Color != 0x3498DB {
		t.Fatalf("empty level must default to info color, got %#x", embed.Color)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Send(context.Background(), notifier.Notification{Title: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSendUnconfigured(t *testing.T) {
	n := NewNotifier("")
	err := n.Send(context.Background(), notifier.Notification{Title: "x"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLevelColors(t *testing.T) {
	cases := map[string]int{
		"success": 0x2ECC71,
		"error":   0xE74C3C,
		"warning": 0xF39C12,
		"info":    0x3498DB,
		"":        0x3498DB,
	}
	for level, want := range cases {
		if got := levelColor(level); got != want {
			t.Errorf("levelColor(%q) = %#x, want %#x", level, got, want)
		}
	}
}
