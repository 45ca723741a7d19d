package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/cryptodash/internal/models"
)

type fakeSender struct {
	failures int
	sent     []tgbotapi.MessageConfig
	attempts int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type fakeSource struct {
	state   models.DashboardState
	retries int
	err     error
}

func (f *fakeSource) Snapshot() models.DashboardState { return f.state }

func (f *fakeSource) Retry(context.Context) error {
	f.retries++
	return f.err
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestSendFallback(t *testing.T) {
	s := &fakeSender{}
	c := newClient(s, 42, 3, time.Millisecond)

	state := models.DashboardState{SelectedCrypto: "bitcoin", Timeframe: 7}
	if err := c.SendFallback(state, "Network error"); err != nil {
		t.Fatalf("SendFallback: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(s.sent))
	}
	msg := s.sent[0]
	if msg.ChatID != 42 {
		t.Errorf("chat ID = %d, want 42", msg.ChatID)
	}
	if msg.ParseMode != "MarkdownV2" {
		t.Errorf("parse mode = %q, want MarkdownV2", msg.ParseMode)
	}
	for _, want := range []string{"demo data", "bitcoin over 7d", "`Network error`"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message %q missing %q", msg.Text, want)
		}
	}
}

func TestSendRecovery(t *testing.T) {
	s := &fakeSender{}
	c := newClient(s, 42, 3, time.Millisecond)

	if err := c.SendRecovery(4); err != nil {
		t.Fatalf("SendRecovery: %v", err)
	}
	if !strings.Contains(s.sent[0].Text, "after 4 fallback cycle\\(s\\)") {
		t.Errorf("unexpected recovery text: %q", s.sent[0].Text)
	}
}

func TestSendMarkdownV2_Retries(t *testing.T) {
	s := &fakeSender{failures: 2}
	c := newClient(s, 1, 3, time.Millisecond)

	if err := c.SendRecovery(1); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if s.attempts != 3 {
		t.Errorf("attempts = %d, want 3", s.attempts)
	}
}

func TestSendMarkdownV2_GivesUp(t *testing.T) {
	s := &fakeSender{failures: 10}
	c := newClient(s, 1, 2, time.Millisecond)

	err := c.SendRecovery(1)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if s.attempts != 2 {
		t.Errorf("attempts = %d, want 2", s.attempts)
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	state := models.DashboardState{
		SelectedCrypto: "ethereum",
		Timeframe:      1,
		Series: []models.ChartPoint{
			{Price: 3400},
			{Price: 3512.5, ChangePercent: 3.31},
		},
		TopGainer:   models.TopPerformerRecord{ID: "solana", Symbol: "SOL", PriceChangePercentage24h: 12.5, TotalVolume: 2500000},
		TopLoser:    models.TopPerformerRecord{ID: "cardano", Symbol: "ADA", PriceChangePercentage24h: -7.25, TotalVolume: 900},
		LastUpdated: now.Add(-3 * time.Minute),
	}

	text := formatStatus(state, now)
	for _, want := range []string{
		"*ethereum* · 24h · live data",
		"Price: $3,512\\.5 \\(\\+3\\.31%\\)",
		"📈 SOL \\+12\\.50%, vol $2,500,000",
		"📉 ADA \\-7\\.25%, vol $900",
		"Updated 3 minutes ago",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("status %q missing %q", text, want)
		}
	}
}

func TestFormatStatus_DemoWithError(t *testing.T) {
	state := models.DashboardState{
		SelectedCrypto: "bitcoin",
		Timeframe:      30,
		UsingMockData:  true,
		Error:          "Network error",
	}
	text := formatStatus(state, time.Now())
	if !strings.Contains(text, "30d · demo data") {
		t.Errorf("status %q missing demo marker", text)
	}
	if !strings.Contains(text, "Error: `Network error`") {
		t.Errorf("status %q missing error", text)
	}
	if strings.Contains(text, "Updated") {
		t.Errorf("status %q should omit zero update time", text)
	}
}

func TestHandleCommand(t *testing.T) {
	s := &fakeSender{}
	c := newClient(s, 1, 1, time.Millisecond)
	src := &fakeSource{state: models.DashboardState{SelectedCrypto: "bitcoin", Timeframe: 7}}
	ctx := context.Background()

	c.handleCommand(ctx, src, 99, "ping")
	c.handleCommand(ctx, src, 99, "status")
	c.handleCommand(ctx, src, 99, "retry")
	c.handleCommand(ctx, src, 99, "unknown")

	if len(s.sent) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(s.sent))
	}
	if s.sent[0].Text != "Pong" {
		t.Errorf("ping reply = %q", s.sent[0].Text)
	}
	if s.sent[1].ChatID != 99 || s.sent[1].ParseMode != "MarkdownV2" {
		t.Errorf("status reply misaddressed: %+v", s.sent[1])
	}
	if src.retries != 1 {
		t.Errorf("retries = %d, want 1", src.retries)
	}
	if s.sent[2].Text != "Refetching now" {
		t.Errorf("retry reply = %q", s.sent[2].Text)
	}
}
