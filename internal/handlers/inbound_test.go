package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wa-bridge/internal/appsync"
	"wa-bridge/internal/message"
	"wa-bridge/internal/repo"
)

type fakeStore struct {
	token       string
	tokenErr    error
	state       *repo.ChatRoomState
	delivery    *repo.ChatRoomDelivery
	findQueue   []string
	createdID   string
	createErr   error
	tokenCalls  int
	stateCalls  int
	deliveries  int
	findCalls   int
	createCalls int
}

func (f *fakeStore) BotTokenByBusinessAccount(context.Context, string) (string, error) {
	f.tokenCalls++
	return f.token, f.tokenErr
}

func (f *fakeStore) BotTokenByChatRoom(context.Context, string) (string, error) {
	f.tokenCalls++
	return f.token, f.tokenErr
}

func (f *fakeStore) ChatRoomState(context.Context, string) (*repo.ChatRoomState, error) {
	f.stateCalls++
	return f.state, nil
}

func (f *fakeStore) ChatRoomDelivery(context.Context, string) (*repo.ChatRoomDelivery, error) {
	f.deliveries++
	return f.delivery, nil
}

// FindUserByWhatsAppUsername pops the next queued result, or "" once exhausted.
func (f *fakeStore) FindUserByWhatsAppUsername(context.Context, string) (string, error) {
	f.findCalls++
	if len(f.findQueue) == 0 {
		return "", nil
	}
	id := f.findQueue[0]
	f.findQueue = f.findQueue[1:]
	return id, nil
}

func (f *fakeStore) CreateIdentifiedUser(context.Context, repo.IdentifiedUserProfile) (string, error) {
	f.createCalls++
	return f.createdID, f.createErr
}

type fakeBackend struct {
	calls       []string
	room        *appsync.ChatRoom
	created     *appsync.ChatRoomMessage
	lastInput   appsync.MessageInput
	lastStatus  string
	lastIDs     []string
	activateErr error
}

func (f *fakeBackend) CreateChatRoom(_ context.Context, _, _, _, _ string) (*appsync.ChatRoom, error) {
	f.calls = append(f.calls, "createChatRoom")
	return f.room, nil
}

func (f *fakeBackend) ActivateClosedChatRoom(_ context.Context, _, _, _ string) error {
	f.calls = append(f.calls, "activateClosedChatRoom")
	return f.activateErr
}

func (f *fakeBackend) CreateChatRoomMessage(_ context.Context, input appsync.MessageInput) (*appsync.ChatRoomMessage, error) {
	f.calls = append(f.calls, "createChatRoomMessage")
	f.lastInput = input
	return f.created, nil
}

func (f *fakeBackend) UpdateMessageData(_ context.Context, _ string, messageIDs []string, status string) error {
	f.calls = append(f.calls, "updateMessageData")
	f.lastIDs = messageIDs
	f.lastStatus = status
	return nil
}

type fakeNotifier struct {
	texts     []string
	templates []string
	raw       json.RawMessage
	sendErr   error
}

func (f *fakeNotifier) SendText(_ context.Context, _, _, text string) error {
	f.texts = append(f.texts, text)
	return f.sendErr
}

func (f *fakeNotifier) SendTemplate(_ context.Context, _, _, templateName string) error {
	f.templates = append(f.templates, templateName)
	return nil
}

func (f *fakeNotifier) Templates(context.Context, string) (json.RawMessage, error) {
	return f.raw, nil
}

type fakeNormalizer struct {
	text    *string
	content []message.Content
	err     error
}

func (f *fakeNormalizer) Normalize(context.Context, message.Inbound, string, string) (*string, []message.Content, error) {
	return f.text, f.content, f.err
}

type fakeTokenCache struct {
	token string
	hit   bool
	gets  int
	sets  int
}

func (f *fakeTokenCache) GetString(context.Context, string) (string, bool, error) {
	f.gets++
	return f.token, f.hit, nil
}

func (f *fakeTokenCache) SetString(context.Context, string, string, time.Duration) error {
	f.sets++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strptr(s string) *string { return &s }

func webhookRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/79990001122", strings.NewReader(body))
}

const textWebhook = `{
	"contacts": [{"profile": {"name": "Ivan"}, "wa_id": "79991112233"}],
	"messages": [{"type": "text", "text": {"body": "hello"}}]
}`

func newInbound(store *fakeStore, backend *fakeBackend, notifier *fakeNotifier, normalizer Normalizer, tokens TokenCache) *InboundHandler {
	return NewInboundHandler(discardLogger(), nil, store, backend, notifier, normalizer, tokens, time.Minute)
}

func TestInboundNewConversationCreatesRoomThenMessage(t *testing.T) {
	store := &fakeStore{token: "bot-token", createdID: "user-1"}
	backend := &fakeBackend{
		room:    &appsync.ChatRoom{ChatRoomID: "room-1", ChannelID: "chan-1"},
		created: &appsync.ChatRoomMessage{MessageID: "msg-1"},
	}
	notifier := &fakeNotifier{}
	h := newInbound(store, backend, notifier, &fakeNormalizer{text: strptr("hello")}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(textWebhook))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := []string{"createChatRoom", "createChatRoomMessage", "updateMessageData"}
	if len(backend.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, backend.calls)
	}
	for i := range want {
		if backend.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, backend.calls)
		}
	}
	if !backend.lastInput.IsClient {
		t.Fatal("inbound messages belong to the client")
	}
	if backend.lastInput.ChatRoomID != "room-1" || backend.lastInput.MessageChannelID != "chan-1" {
		t.Fatalf("created room ids not propagated: %+v", backend.lastInput)
	}
	if backend.lastInput.MessageAuthorID != "user-1" {
		t.Fatalf("expected created client as author, got %s", backend.lastInput.MessageAuthorID)
	}
	if backend.lastStatus != appsync.MessageStatusDelivered || len(backend.lastIDs) != 1 || backend.lastIDs[0] != "msg-1" {
		t.Fatalf("delivered status not recorded: %s %v", backend.lastStatus, backend.lastIDs)
	}
	if len(notifier.texts) != 0 {
		t.Fatalf("no notices expected, got %v", notifier.texts)
	}
}

func TestInboundCompletedConversationReactivates(t *testing.T) {
	status := repo.ChatRoomStatusCompleted
	clientID := "client-9"
	store := &fakeStore{
		token: "bot-token",
		state: &repo.ChatRoomState{ChatRoomID: "room-9", ChannelID: "chan-9", Status: &status, ClientID: &clientID},
	}
	backend := &fakeBackend{created: &appsync.ChatRoomMessage{MessageID: "msg-9"}}
	h := newInbound(store, backend, &fakeNotifier{}, &fakeNormalizer{text: strptr("hello")}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(textWebhook))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := []string{"activateClosedChatRoom", "createChatRoomMessage", "updateMessageData"}
	if len(backend.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, backend.calls)
	}
	for i := range want {
		if backend.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, backend.calls)
		}
	}
	if backend.lastInput.MessageAuthorID != "client-9" {
		t.Fatalf("expected stored client as author, got %s", backend.lastInput.MessageAuthorID)
	}
	if store.findCalls != 0 || store.createCalls != 0 {
		t.Fatal("known client must not trigger identity writes")
	}
}

func TestInboundActiveConversationAppendsOnly(t *testing.T) {
	status := "active"
	clientID := "client-3"
	store := &fakeStore{
		token: "bot-token",
		state: &repo.ChatRoomState{ChatRoomID: "room-3", ChannelID: "chan-3", Status: &status, ClientID: &clientID},
	}
	backend := &fakeBackend{created: &appsync.ChatRoomMessage{MessageID: "msg-3"}}
	h := newInbound(store, backend, &fakeNotifier{}, &fakeNormalizer{text: strptr("hello")}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(textWebhook))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, call := range backend.calls {
		if call == "createChatRoom" || call == "activateClosedChatRoom" {
			t.Fatalf("active room must only receive the message, got %v", backend.calls)
		}
	}
}

func TestInboundAttachmentCannotOpenConversation(t *testing.T) {
	store := &fakeStore{token: "bot-token"}
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}
	h := newInbound(store, backend, notifier, &fakeNormalizer{}, nil)

	body := `{
		"contacts": [{"profile": {"name": "Ivan"}, "wa_id": "79991112233"}],
		"messages": [{"type": "location", "location": {"latitude": 1, "longitude": 2}}]
	}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(notifier.texts) != 1 || notifier.texts[0] != textFirstNotice {
		t.Fatalf("expected text-first notice, got %v", notifier.texts)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("no backend writes expected, got %v", backend.calls)
	}
	if store.findCalls != 0 || store.createCalls != 0 {
		t.Fatal("no identity writes expected")
	}
}

func TestInboundUnsupportedTypeSendsNotice(t *testing.T) {
	store := &fakeStore{token: "bot-token"}
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}
	h := newInbound(store, backend, notifier, &fakeNormalizer{}, nil)

	body := `{
		"contacts": [{"profile": {"name": "Ivan"}, "wa_id": "79991112233"}],
		"messages": [{"type": "sticker"}]
	}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(notifier.texts) != 1 || notifier.texts[0] != unsupportedNotice {
		t.Fatalf("expected unsupported notice, got %v", notifier.texts)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("no backend writes expected, got %v", backend.calls)
	}
}

func TestInboundStatusCallbackAcknowledged(t *testing.T) {
	store := &fakeStore{token: "bot-token"}
	backend := &fakeBackend{}
	h := newInbound(store, backend, &fakeNotifier{}, &fakeNormalizer{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(`{"statuses": [{"id": "x", "status": "read"}]}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.tokenCalls != 0 || store.stateCalls != 0 || len(backend.calls) != 0 {
		t.Fatal("status callbacks must be acknowledged without any lookups")
	}
}

func TestInboundBotTokenCacheHitSkipsDatabase(t *testing.T) {
	store := &fakeStore{token: "db-token"}
	backend := &fakeBackend{
		room:    &appsync.ChatRoom{ChatRoomID: "room-1", ChannelID: "chan-1"},
		created: &appsync.ChatRoomMessage{MessageID: "msg-1"},
	}
	cache := &fakeTokenCache{token: "cached-token", hit: true}
	store.createdID = "user-1"
	h := newInbound(store, backend, &fakeNotifier{}, &fakeNormalizer{text: strptr("hello")}, cache)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(textWebhook))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cache.gets != 1 {
		t.Fatalf("expected one cache read, got %d", cache.gets)
	}
	if store.tokenCalls != 0 {
		t.Fatal("cache hit must not reach the database")
	}
}

func TestInboundDuplicateHandleRaceReResolvesWinner(t *testing.T) {
	store := &fakeStore{
		token:     "bot-token",
		createErr: repo.ErrHandleExists,
		findQueue: []string{"", "winner-id"},
	}
	backend := &fakeBackend{
		room:    &appsync.ChatRoom{ChatRoomID: "room-1", ChannelID: "chan-1"},
		created: &appsync.ChatRoomMessage{MessageID: "msg-1"},
	}
	h := newInbound(store, backend, &fakeNotifier{}, &fakeNormalizer{text: strptr("hello")}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(textWebhook))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.findCalls != 2 || store.createCalls != 1 {
		t.Fatalf("expected find-create-find sequence, got %d finds %d creates", store.findCalls, store.createCalls)
	}
	if backend.lastInput.MessageAuthorID != "winner-id" {
		t.Fatalf("expected race winner as author, got %s", backend.lastInput.MessageAuthorID)
	}
}

func TestInboundTokenCacheMissPopulatesCache(t *testing.T) {
	store := &fakeStore{token: "db-token", createdID: "user-1"}
	backend := &fakeBackend{
		room:    &appsync.ChatRoom{ChatRoomID: "room-1", ChannelID: "chan-1"},
		created: &appsync.ChatRoomMessage{MessageID: "msg-1"},
	}
	cache := &fakeTokenCache{}
	h := newInbound(store, backend, &fakeNotifier{}, &fakeNormalizer{text: strptr("hello")}, cache)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequest(textWebhook))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.tokenCalls != 1 {
		t.Fatalf("expected a database token lookup, got %d", store.tokenCalls)
	}
	if cache.sets != 1 {
		t.Fatalf("expected the token to be cached, got %d writes", cache.sets)
	}
}
