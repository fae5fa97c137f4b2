package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/sync/errgroup"

	"wa-bridge/internal/appsync"
	"wa-bridge/internal/metrics"
	"wa-bridge/internal/repo"
)

const (
	reEngagementTemplate = "keep_alive"
	reEngagementText     = "Здравствуйте! Ваше сообщение было получено нами, пока мы были недоступны. Можем ли мы связаться с вами по поводу вашего вопроса еще раз?\nЕсли вы согласны, пожалуйста, отправьте нам ДА."
)

// TemplateHandler persists a canned re-engagement message and sends the matching
// provider template to clients whose messaging window has closed.
type TemplateHandler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    Store
	backend  Backend
	notifier Notifier
}

// NewTemplateHandler creates the re-engagement dispatcher.
func NewTemplateHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, store Store, backend Backend, notifier Notifier) *TemplateHandler {
	return &TemplateHandler{
		logger:   logger.With("component", "template_send"),
		metrics:  metricRegistry,
		store:    store,
		backend:  backend,
		notifier: notifier,
	}
}

type templateInput struct {
	ChatRoomID       string `json:"chatRoomId"`
	MessageAuthorID  string `json:"messageAuthorId"`
	MessageChannelID string `json:"messageChannelId"`
}

func (in templateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ChatRoomID, validation.Required, is.UUID),
		validation.Field(&in.MessageAuthorID, validation.Required, is.UUID),
		validation.Field(&in.MessageChannelID, validation.Required, is.UUID),
	)
}

// ServeHTTP satisfies http.Handler. Input validation and the chat-room delivery
// lookup run concurrently; the first failure aborts the request.
func (h *TemplateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body argumentsBody[templateInput]
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	input := body.Arguments.Input

	ctx := r.Context()

	var delivery *repo.ChatRoomDelivery
	g, gctx := errgroup.WithContext(ctx)
	g.Go(input.Validate)
	g.Go(func() error {
		var err error
		delivery, err = h.store.ChatRoomDelivery(gctx, input.ChatRoomID)
		return err
	})
	if err := g.Wait(); err != nil {
		if validationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.fail(w, "resolve chat room", err)
		return
	}

	text := reEngagementText
	created, err := h.backend.CreateChatRoomMessage(ctx, appsync.MessageInput{
		ChatRoomID:       input.ChatRoomID,
		MessageAuthorID:  input.MessageAuthorID,
		MessageChannelID: input.MessageChannelID,
		MessageText:      &text,
		IsClient:         false,
	})
	if err != nil {
		h.fail(w, "create chat room message", err)
		return
	}

	if err := h.notifier.SendTemplate(ctx, delivery.BotToken, delivery.WhatsAppChatID, reEngagementTemplate); err != nil {
		h.fail(w, "send template", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{StatusCode: http.StatusOK, Body: created})
}

func (h *TemplateHandler) fail(w http.ResponseWriter, step string, err error) {
	h.logger.Error("template send failed", "step", step, "error", err)
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues("template_send").Inc()
	}
	writeError(w, http.StatusInternalServerError, "failed to send template")
}

func validationError(err error) bool {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return true
	}
	var verr validation.ErrorObject
	return errors.As(err, &verr)
}
