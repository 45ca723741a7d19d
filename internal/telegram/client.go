// Package telegram provides a client for sending dashboard notifications via
// the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/cryptodash/internal/logger"
	"github.com/rewired-gh/cryptodash/internal/models"
)

// StateSource is what bot commands can inspect and act on.
type StateSource interface {
	Snapshot() models.DashboardState
	Retry(ctx context.Context) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase)
	c.bot = bot
	return c, nil
}

func newClient(s sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		sender:         s,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// handles bot commands. It returns immediately; the goroutine stops when ctx
// is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, src StateSource) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, src, update.Message.Chat.ID, update.Message.Command())
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, src StateSource, chatID int64, command string) {
	var reply tgbotapi.MessageConfig
	switch command {
	case "ping":
		reply = tgbotapi.NewMessage(chatID, "Pong")
	case "status":
		reply = tgbotapi.NewMessage(chatID, formatStatus(src.Snapshot(), time.Now()))
		reply.ParseMode = "MarkdownV2"
	case "retry":
		text := "Refetching now"
		if err := src.Retry(ctx); err != nil {
			text = "Retry failed: " + err.Error()
		}
		reply = tgbotapi.NewMessage(chatID, text)
	default:
		return
	}
	if _, err := c.sender.Send(reply); err != nil {
		logger.Warn("Failed to reply to /%s: %v", command, err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.sender.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendFallback reports that the dashboard is now showing demo data.
// Call this only on the first fallback of a consecutive run.
func (c *Client) SendFallback(state models.DashboardState, cause string) error {
	return c.sendMarkdownV2(formatFallback(state, cause))
}

// SendRecovery reports live data after consecutive fallback cycles.
func (c *Client) SendRecovery(fallbackCycles int) error {
	text := fmt.Sprintf("✅ *Live data restored* after %d fallback cycle\\(s\\)", fallbackCycles)
	return c.sendMarkdownV2(text)
}

func formatFallback(state models.DashboardState, cause string) string {
	var b strings.Builder
	b.WriteString("⚠️ *Showing demo data*\n")
	fmt.Fprintf(&b, "%s over %s\n", escapeMarkdownV2(state.SelectedCrypto), escapeMarkdownV2(timeframeLabel(state.Timeframe)))
	if cause != "" {
		fmt.Fprintf(&b, "`%s`", escapeMarkdownV2(cause))
	}
	return b.String()
}

func formatStatus(state models.DashboardState, now time.Time) string {
	var b strings.Builder

	source := "live"
	if state.UsingMockData {
		source = "demo"
	}
	fmt.Fprintf(&b, "📊 *%s* · %s · %s data\n",
		escapeMarkdownV2(state.SelectedCrypto),
		escapeMarkdownV2(timeframeLabel(state.Timeframe)),
		source)

	if n := len(state.Series); n > 0 {
		last := state.Series[n-1]
		fmt.Fprintf(&b, "Price: $%s \\(%s\\)\n",
			escapeMarkdownV2(humanize.CommafWithDigits(last.Price, 2)),
			escapeMarkdownV2(signedPercent(last.ChangePercent)))
	}

	b.WriteString(formatLeader("📈", state.TopGainer))
	b.WriteString(formatLeader("📉", state.TopLoser))

	if state.Error != "" {
		fmt.Fprintf(&b, "Error: `%s`\n", escapeMarkdownV2(state.Error))
	}
	if !state.LastUpdated.IsZero() {
		fmt.Fprintf(&b, "Updated %s", escapeMarkdownV2(humanize.RelTime(state.LastUpdated, now, "ago", "from now")))
	}
	return b.String()
}

func formatLeader(emoji string, r models.TopPerformerRecord) string {
	if r.ID == "" {
		return ""
	}
	return fmt.Sprintf("%s %s %s, vol $%s\n",
		emoji,
		escapeMarkdownV2(r.Symbol),
		escapeMarkdownV2(signedPercent(r.PriceChangePercentage24h)),
		escapeMarkdownV2(humanize.CommafWithDigits(r.TotalVolume, 0)))
}

func signedPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

func timeframeLabel(days int) string {
	if days == 1 {
		return "24h"
	}
	return fmt.Sprintf("%dd", days)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
