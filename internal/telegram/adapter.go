package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/gopherfeed/internal/types"
)

const maxTelegramMessage = 4096

const (
	pollTimeoutSeconds = 30
	idleDelay          = 2 * time.Second
	errorDelayBase     = 2 * time.Second
	errorDelayMax      = 60 * time.Second
)

// Adapter bridges Telegram to the capture pipeline. Telegram has no
// genuine push channel here, so Start runs a manual polling loop: it
// tracks its own monotonically increasing update offset (distinct from
// the item-level cursor), requests updates newer than that offset, and
// feeds each one through the capture callback used by real pushes.
type Adapter struct {
	bot *tgbotapi.BotAPI
}

// New creates a Telegram adapter.
func New(token string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

var _ types.Transport = (*Adapter)(nil)

// Start polls for updates until the context is cancelled. The loop
// backs off when a poll returns nothing and backs off further on
// repeated transport errors. Malformed updates are logged and
// discarded; a single bad payload never stops ingestion of the rest.
func (a *Adapter) Start(ctx context.Context, capture func(*types.QueueEntry)) {
	offset := 0
	errorDelay := errorDelayBase

	for {
		if ctx.Err() != nil {
			return
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = pollTimeoutSeconds
		updates, err := a.bot.GetUpdates(cfg)
		if err != nil {
			slog.Warn("telegram poll failed",
				"error", fmt.Errorf("%w: %v", types.ErrTransport, err),
				"retry_in", errorDelay)
			if !sleep(ctx, errorDelay) {
				return
			}
			errorDelay = min(errorDelay*2, errorDelayMax)
			continue
		}
		errorDelay = errorDelayBase

		if len(updates) == 0 {
			if !sleep(ctx, idleDelay) {
				return
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			entry, err := entryFromUpdate(update)
			if err != nil {
				slog.Warn("discarding malformed update", "update_id", update.UpdateID, "error", err)
				continue
			}
			if entry == nil {
				continue
			}
			capture(entry)
		}
	}
}

// SendAction sends an outbound message to the chat identified by
// target. Long payloads are split at the Telegram message limit, with
// a plain-text retry when markdown parsing is rejected.
func (a *Adapter) SendAction(target string, payload string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad chat id %q", types.ErrInvalidRequest, target)
	}

	for _, part := range splitMessage(payload) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

// entryFromUpdate converts a Telegram update into a QueueEntry with
// the denormalized filter fields. Updates without a message (edits,
// callbacks, channel posts) are skipped with a nil entry.
func entryFromUpdate(update tgbotapi.Update) (*types.QueueEntry, error) {
	msg := update.Message
	if msg == nil {
		return nil, nil
	}
	if msg.Chat == nil {
		return nil, fmt.Errorf("message %d has no chat", msg.MessageID)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}

	entry := &types.QueueEntry{
		ID:          types.NewEntryID(),
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		MessageType: messageType(msg),
		Text:        messageText(msg),
		CapturedAt:  time.Now(),
		Payload:     raw,
	}
	if msg.IsCommand() {
		entry.Command = msg.Command()
	}
	return entry, nil
}

func messageType(msg *tgbotapi.Message) string {
	switch {
	case msg.IsCommand():
		return "command"
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Document != nil:
		return "document"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Voice != nil:
		return "voice"
	case msg.Video != nil:
		return "video"
	case msg.Text != "":
		return "text"
	default:
		return "other"
	}
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

// sleep waits for d, returning false if the context was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
