package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"wa-bridge/internal/appsync"
	"wa-bridge/internal/metrics"
)

const operatorMessagePrefix = "🙂💬\n"

// OperatorHandler forwards operator-authored messages to the WhatsApp client after
// persisting them on the backend.
type OperatorHandler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    Store
	backend  Backend
	notifier Notifier
}

// NewOperatorHandler creates the operator-send dispatcher.
func NewOperatorHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, store Store, backend Backend, notifier Notifier) *OperatorHandler {
	return &OperatorHandler{
		logger:   logger.With("component", "operator_send"),
		metrics:  metricRegistry,
		store:    store,
		backend:  backend,
		notifier: notifier,
	}
}

type operatorInput struct {
	ChatRoomID       string                 `json:"chatRoomId"`
	MessageAuthorID  string                 `json:"messageAuthorId"`
	MessageChannelID string                 `json:"messageChannelId"`
	MessageText      *string                `json:"messageText"`
	MessageContent   *string                `json:"messageContent"`
	LocalMessageID   *string                `json:"localMessageId"`
	QuotedMessage    *appsync.QuotedMessage `json:"quotedMessage"`
}

func (in operatorInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ChatRoomID, validation.Required, is.UUID),
		validation.Field(&in.MessageAuthorID, validation.Required, is.UUID),
		validation.Field(&in.MessageChannelID, validation.Required, is.UUID),
	)
}

type argumentsBody[T any] struct {
	Arguments struct {
		Input T `json:"input"`
	} `json:"arguments"`
}

// messageResponse echoes the created message alongside the status code.
type messageResponse struct {
	StatusCode int                      `json:"statusCode"`
	Body       *appsync.ChatRoomMessage `json:"body"`
}

// ServeHTTP satisfies http.Handler. Malformed identifiers are rejected before any
// database or backend call.
func (h *OperatorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body argumentsBody[operatorInput]
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	input := body.Arguments.Input
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	delivery, err := h.store.ChatRoomDelivery(ctx, input.ChatRoomID)
	if err != nil {
		h.fail(w, "load chat room delivery", err)
		return
	}

	created, err := h.backend.CreateChatRoomMessage(ctx, appsync.MessageInput{
		ChatRoomID:       input.ChatRoomID,
		MessageAuthorID:  input.MessageAuthorID,
		MessageChannelID: input.MessageChannelID,
		MessageText:      input.MessageText,
		MessageContent:   input.MessageContent,
		LocalMessageID:   input.LocalMessageID,
		QuotedMessage:    input.QuotedMessage,
		IsClient:         false,
	})
	if err != nil {
		h.fail(w, "create chat room message", err)
		return
	}

	// Attachment-only messages are persisted but have no text to forward.
	if input.MessageText != nil {
		if err := h.notifier.SendText(ctx, delivery.BotToken, delivery.WhatsAppChatID, operatorMessagePrefix+*input.MessageText); err != nil {
			h.fail(w, "forward to whatsapp", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, messageResponse{StatusCode: http.StatusOK, Body: created})
}

func (h *OperatorHandler) fail(w http.ResponseWriter, step string, err error) {
	h.logger.Error("operator send failed", "step", step, "error", err)
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues("operator_send").Inc()
	}
	writeError(w, http.StatusInternalServerError, "failed to send message")
}
