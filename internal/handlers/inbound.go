package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wa-bridge/internal/appsync"
	"wa-bridge/internal/message"
	"wa-bridge/internal/metrics"
	"wa-bridge/internal/repo"
)

const (
	unsupportedNotice = "🤖💬\nОбработка данного формата сообщения в данный момент невозможна.\nПросим прощения за доставленные временные неудобства!"
	textFirstNotice   = "🤖💬\nПожалуйста, сначала опишите ваш вопрос текстовым сообщением, чтобы мы могли открыть обращение."
)

// InboundHandler processes provider webhook events for inbound client messages.
type InboundHandler struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	store      Store
	backend    Backend
	notifier   Notifier
	normalizer Normalizer
	tokens     TokenCache
	tokenTTL   time.Duration
}

// NewInboundHandler creates the inbound webhook dispatcher. tokens may be nil, in
// which case every bot token lookup goes straight to the database.
func NewInboundHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, store Store, backend Backend, notifier Notifier, normalizer Normalizer, tokens TokenCache, tokenTTL time.Duration) *InboundHandler {
	return &InboundHandler{
		logger:     logger.With("component", "inbound_webhook"),
		metrics:    metricRegistry,
		store:      store,
		backend:    backend,
		notifier:   notifier,
		normalizer: normalizer,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
	}
}

type webhookContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WAID string `json:"wa_id"`
}

type webhookBody struct {
	Contacts []webhookContact  `json:"contacts"`
	Messages []message.Inbound `json:"messages"`
}

// ServeHTTP satisfies http.Handler. The business account is the last segment of
// the request path.
func (h *InboundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessAccount := lastPathSegment(r.URL.Path)
	if businessAccount == "" {
		writeError(w, http.StatusBadRequest, "missing business account")
		return
	}

	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	// Delivery receipts and status callbacks carry no contacts/messages pair.
	if len(body.Contacts) == 0 || len(body.Messages) == 0 {
		writeStatusOK(w)
		return
	}

	contact := body.Contacts[0]
	msg := body.Messages[0]
	if h.metrics != nil {
		h.metrics.InboundMessages.WithLabelValues(msg.Type).Inc()
	}

	ctx := r.Context()

	// Bot token and chat-room state are independent reads, resolved concurrently.
	var (
		botToken string
		state    *repo.ChatRoomState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		botToken, err = h.botToken(gctx, businessAccount)
		return err
	})
	g.Go(func() error {
		var err error
		state, err = h.store.ChatRoomState(gctx, contact.WAID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, "resolve session", err)
		return
	}

	if !supportedType(msg.Type) {
		h.notify(ctx, w, botToken, contact.WAID, unsupportedNotice)
		return
	}

	// Attachments cannot originate a new conversation.
	if state == nil && msg.Type != message.TypeText {
		h.notify(ctx, w, botToken, contact.WAID, textFirstNotice)
		return
	}

	chatRoomID := ""
	if state != nil {
		chatRoomID = state.ChatRoomID
	}
	text, content, err := h.normalizer.Normalize(ctx, msg, botToken, chatRoomID)
	if err != nil {
		h.fail(w, "normalize message", err)
		return
	}
	preview := encodePreview(text, content)

	var channelID, clientID string
	if state == nil {
		// Identity before conversation, so the room is created with a committed client id.
		clientID, err = h.resolveClient(ctx, contact)
		if err != nil {
			h.fail(w, "resolve client", err)
			return
		}
		room, err := h.backend.CreateChatRoom(ctx, botToken, clientID, contact.WAID, preview)
		if err != nil {
			h.fail(w, "create chat room", err)
			return
		}
		chatRoomID, channelID = room.ChatRoomID, room.ChannelID
	} else {
		channelID = state.ChannelID
		if state.ClientID != nil {
			clientID = *state.ClientID
		} else {
			clientID, err = h.resolveClient(ctx, contact)
			if err != nil {
				h.fail(w, "resolve client", err)
				return
			}
		}
		if state.Status != nil && *state.Status == repo.ChatRoomStatusCompleted {
			if err := h.backend.ActivateClosedChatRoom(ctx, chatRoomID, clientID, preview); err != nil {
				h.fail(w, "activate chat room", err)
				return
			}
		}
	}

	created, err := h.backend.CreateChatRoomMessage(ctx, appsync.MessageInput{
		ChatRoomID:       chatRoomID,
		MessageAuthorID:  clientID,
		MessageChannelID: channelID,
		MessageText:      text,
		MessageContent:   encodeContent(content),
		IsClient:         true,
	})
	if err != nil {
		h.fail(w, "create chat room message", err)
		return
	}

	if err := h.backend.UpdateMessageData(ctx, chatRoomID, []string{created.MessageID}, appsync.MessageStatusDelivered); err != nil {
		h.fail(w, "update message data", err)
		return
	}

	writeStatusOK(w)
}

// resolveClient prefers the existing identified user and creates one otherwise.
// A duplicate-handle race on create falls through to a second lookup.
func (h *InboundHandler) resolveClient(ctx context.Context, contact webhookContact) (string, error) {
	userID, err := h.store.FindUserByWhatsAppUsername(ctx, contact.WAID)
	if err != nil {
		return "", err
	}
	if userID != "" {
		return userID, nil
	}

	userID, err = h.store.CreateIdentifiedUser(ctx, repo.IdentifiedUserProfile{
		WhatsAppUsername: contact.WAID,
		WhatsAppProfile:  contact.Profile.Name,
		PhoneNumber:      "+" + contact.WAID,
		Metadata: map[string]any{
			"profile": map[string]any{"name": contact.Profile.Name},
			"wa_id":   contact.WAID,
		},
	})
	if errors.Is(err, repo.ErrHandleExists) {
		return h.store.FindUserByWhatsAppUsername(ctx, contact.WAID)
	}
	return userID, err
}

func (h *InboundHandler) botToken(ctx context.Context, businessAccount string) (string, error) {
	cacheKey := "wa-bridge:bot_token:" + businessAccount
	if h.tokens != nil {
		token, ok, err := h.tokens.GetString(ctx, cacheKey)
		if err != nil {
			h.logger.Warn("bot token cache read failed", "error", err)
		} else if ok {
			return token, nil
		}
	}

	token, err := h.store.BotTokenByBusinessAccount(ctx, businessAccount)
	if err != nil {
		return "", err
	}

	if h.tokens != nil {
		if err := h.tokens.SetString(ctx, cacheKey, token, h.tokenTTL); err != nil {
			h.logger.Warn("bot token cache write failed", "error", err)
		}
	}
	return token, nil
}

func (h *InboundHandler) notify(ctx context.Context, w http.ResponseWriter, botToken, chatID, text string) {
	if err := h.notifier.SendText(ctx, botToken, chatID, text); err != nil {
		h.fail(w, "send notice", err)
		return
	}
	writeStatusOK(w)
}

func (h *InboundHandler) fail(w http.ResponseWriter, step string, err error) {
	h.logger.Error("inbound webhook failed", "step", step, "error", err)
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues("inbound_webhook").Inc()
	}
	writeError(w, http.StatusInternalServerError, "failed to process inbound message")
}

func supportedType(messageType string) bool {
	switch messageType {
	case message.TypeText, message.TypeLocation, message.TypeImage,
		message.TypeVideo, message.TypeDocument, message.TypeVoice:
		return true
	}
	return false
}

func lastPathSegment(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
