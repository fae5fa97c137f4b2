package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"wa-bridge/internal/metrics"
)

const notificationPrefix = "🤖💬\n"

// NotificationHandler forwards system notifications to the WhatsApp client
// without persisting them.
type NotificationHandler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    Store
	notifier Notifier
}

// NewNotificationHandler creates the system-notification dispatcher.
func NewNotificationHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, store Store, notifier Notifier) *NotificationHandler {
	return &NotificationHandler{
		logger:   logger.With("component", "notification_send"),
		metrics:  metricRegistry,
		store:    store,
		notifier: notifier,
	}
}

type notificationInput struct {
	ChatRoomID              string `json:"chatRoomId"`
	NotificationDescription string `json:"notificationDescription"`
}

func (in notificationInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ChatRoomID, validation.Required, is.UUID),
		validation.Field(&in.NotificationDescription, validation.Required),
	)
}

// ServeHTTP satisfies http.Handler.
func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body argumentsBody[notificationInput]
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

	if err := h.notifier.SendText(ctx, delivery.BotToken, delivery.WhatsAppChatID, notificationPrefix+input.NotificationDescription); err != nil {
		h.fail(w, "forward to whatsapp", err)
		return
	}

	writeStatusOK(w)
}

func (h *NotificationHandler) fail(w http.ResponseWriter, step string, err error) {
	h.logger.Error("notification send failed", "step", step, "error", err)
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues("notification_send").Inc()
	}
	writeError(w, http.StatusInternalServerError, "failed to send notification")
}
