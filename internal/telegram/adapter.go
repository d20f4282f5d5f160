package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/gateway"
	"github.com/user/labkeeper/internal/types"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the gateway. It doubles as a delivery
// channel: agent output is pushed to the chat, and approval questions
// block until the next message from that chat arrives. While a question
// is outstanding, incoming text from the chat answers it instead of
// starting a new turn.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	gateway  *gateway.Gateway
	events   types.EventStore
	sessions types.SessionStore
	logger   *zap.Logger

	mu      sync.Mutex
	waiting map[int64]chan string
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway, events types.EventStore, sessions types.SessionStore, logger *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:      bot,
		gateway:  gw,
		events:   events,
		sessions: sessions,
		logger:   logger,
		waiting:  make(map[int64]chan string),
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if !msg.IsCommand() && a.answerPending(chatID, msg.Text) {
		return
	}

	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	key := buildSessionKey(msg.From.ID, chatID)
	userID := strconv.FormatInt(msg.From.ID, 10)
	err := a.gateway.HandleInbound(ctx, key, "telegram", userID, msg.Text,
		gateway.WithOnComplete(func(result string) {
			a.send(chatID, result)
		}))
	if err != nil {
		a.logger.Error("handle inbound", zap.Int64("chat_id", chatID), zap.Error(err))
		a.send(chatID, "Sorry, I encountered an error processing your message.")
	}
}

// answerPending routes the message to an outstanding approval question,
// if one exists for the chat. Returns true when consumed.
func (a *Adapter) answerPending(chatID int64, text string) bool {
	a.mu.Lock()
	reply, ok := a.waiting[chatID]
	if ok {
		delete(a.waiting, chatID)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}
	reply <- text
	return true
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.send(chatID, "Hello! I'm Labkeeper. Ask me to validate, insert, or delete lab records.")

	case "status":
		key := buildSessionKey(msg.From.ID, msg.Chat.ID)
		sid, err := a.sessions.ResolveOrCreate(ctx, key, "telegram", strconv.FormatInt(msg.From.ID, 10))
		if err != nil {
			a.send(chatID, "Error fetching status.")
			return
		}
		count, err := a.events.Count(ctx, sid)
		if err != nil {
			a.send(chatID, "Error fetching status.")
			return
		}
		a.send(chatID, fmt.Sprintf("Session: %s\nEvents: %d", sid, count))

	default:
		a.send(chatID, "Unknown command. Available: /start, /status")
	}
}

// Send delivers agent output to the chat encoded in the session key.
func (a *Adapter) Send(sessionKey types.SessionKey, message string) error {
	chatID, err := chatFromKey(sessionKey)
	if err != nil {
		return err
	}
	a.send(chatID, message)
	return nil
}

// Prompt sends the approval question to the chat and blocks until the
// next message from that chat, or until ctx is cancelled.
func (a *Adapter) Prompt(ctx context.Context, sessionKey types.SessionKey, question string) (string, error) {
	chatID, err := chatFromKey(sessionKey)
	if err != nil {
		return "", err
	}

	reply := make(chan string, 1)
	a.mu.Lock()
	a.waiting[chatID] = reply
	a.mu.Unlock()

	a.send(chatID, question)

	select {
	case answer := <-reply:
		return answer, nil
	case <-ctx.Done():
		a.mu.Lock()
		delete(a.waiting, chatID)
		a.mu.Unlock()
		return "", ctx.Err()
	}
}

func (a *Adapter) send(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				a.logger.Error("send message", zap.Int64("chat_id", chatID), zap.Error(err))
			}
		}
	}
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

func chatFromKey(key types.SessionKey) (int64, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed telegram session key: %s", key)
	}
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed chat id in session key %s: %w", key, err)
	}
	return chatID, nil
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
