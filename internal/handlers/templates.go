package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"wa-bridge/internal/metrics"
)

// TemplateListHandler returns the provider template catalog of the business
// account a chat room belongs to.
type TemplateListHandler struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    Store
	notifier Notifier
}

// NewTemplateListHandler creates the template catalog dispatcher.
func NewTemplateListHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, store Store, notifier Notifier) *TemplateListHandler {
	return &TemplateListHandler{
		logger:   logger.With("component", "template_list"),
		metrics:  metricRegistry,
		store:    store,
		notifier: notifier,
	}
}

type templateListInput struct {
	ChatRoomID string `json:"chatRoomId"`
}

func (in templateListInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ChatRoomID, validation.Required, is.UUID),
	)
}

// ServeHTTP satisfies http.Handler.
func (h *TemplateListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body argumentsBody[templateListInput]
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

	botToken, err := h.store.BotTokenByChatRoom(ctx, input.ChatRoomID)
	if err != nil {
		h.fail(w, "load bot token", err)
		return
	}

	templates, err := h.notifier.Templates(ctx, botToken)
	if err != nil {
		h.fail(w, "list templates", err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		StatusCode int             `json:"statusCode"`
		Body       json.RawMessage `json:"body"`
	}{StatusCode: http.StatusOK, Body: templates})
}

func (h *TemplateListHandler) fail(w http.ResponseWriter, step string, err error) {
	h.logger.Error("template list failed", "step", step, "error", err)
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues("template_list").Inc()
	}
	writeError(w, http.StatusInternalServerError, "failed to list templates")
}
