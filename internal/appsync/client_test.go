package appsync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturedRequest struct {
	apiKey    string
	query     string
	variables map[string]any
}

func graphqlServer(t *testing.T, captured *capturedRequest, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.apiKey = r.Header.Get("x-api-key")
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode graphql request: %v", err)
		}
		captured.query = req.Query
		captured.variables = req.Variables
		_, _ = w.Write([]byte(response))
	}))
}

func TestCreateChatRoomSendsVariablesAndParsesRoom(t *testing.T) {
	var captured capturedRequest
	srv := graphqlServer(t, &captured, `{"data": {"createChatRoom": {"chatRoomId": "room-1", "channelId": "chan-1"}}}`)
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "secret"}, testLogger(), nil)
	room, err := c.CreateChatRoom(context.Background(), "bot-token", "client-1", "79991112233", `{"messageText":"hi"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.apiKey != "secret" {
		t.Fatalf("expected x-api-key header, got %q", captured.apiKey)
	}
	if !strings.Contains(captured.query, "createChatRoom") {
		t.Fatalf("unexpected query: %s", captured.query)
	}
	if captured.variables["channelTechnicalId"] != "bot-token" {
		t.Fatalf("bot token must flow as channelTechnicalId, got %v", captured.variables)
	}
	if captured.variables["channelTypeName"] != "whatsapp" {
		t.Fatalf("expected whatsapp channel type, got %v", captured.variables["channelTypeName"])
	}
	if room.ChatRoomID != "room-1" || room.ChannelID != "chan-1" {
		t.Fatalf("unexpected room: %+v", room)
	}
}

func TestCreateChatRoomRejectsEmptyRoomID(t *testing.T) {
	var captured capturedRequest
	srv := graphqlServer(t, &captured, `{"data": {"createChatRoom": {}}}`)
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "secret"}, testLogger(), nil)
	if _, err := c.CreateChatRoom(context.Background(), "t", "c", "w", "m"); err == nil {
		t.Fatal("expected error when backend returns no chat room id")
	}
}

func TestCreateChatRoomMessageParsesEntity(t *testing.T) {
	var captured capturedRequest
	srv := graphqlServer(t, &captured, `{"data": {"createChatRoomMessage": {
		"chatRoomId": "room-1", "messageId": "msg-1", "messageText": "hello",
		"messageIsSent": true
	}}}`)
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "secret"}, testLogger(), nil)
	text := "hello"
	created, err := c.CreateChatRoomMessage(context.Background(), MessageInput{
		ChatRoomID:       "room-1",
		MessageAuthorID:  "author-1",
		MessageChannelID: "chan-1",
		MessageText:      &text,
		IsClient:         true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.MessageID != "msg-1" || !created.MessageIsSent {
		t.Fatalf("unexpected message: %+v", created)
	}
	if captured.variables["isClient"] != true {
		t.Fatalf("isClient flag lost: %v", captured.variables)
	}
}

func TestUpdateMessageDataSendsStatus(t *testing.T) {
	var captured capturedRequest
	srv := graphqlServer(t, &captured, `{"data": {"updateMessageData": {"chatRoomId": "room-1"}}}`)
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "secret"}, testLogger(), nil)
	if err := c.UpdateMessageData(context.Background(), "room-1", []string{"msg-1", "msg-2"}, MessageStatusDelivered); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.variables["messageStatus"] != MessageStatusDelivered {
		t.Fatalf("expected delivered status, got %v", captured.variables["messageStatus"])
	}
	ids, ok := captured.variables["messagesIds"].([]any)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected two message ids, got %v", captured.variables["messagesIds"])
	}
}

func TestGraphQLErrorsSurfaceAsErrors(t *testing.T) {
	var captured capturedRequest
	srv := graphqlServer(t, &captured, `{"data": null, "errors": [{"message": "room not found"}]}`)
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, APIKey: "secret"}, testLogger(), nil)
	err := c.ActivateClosedChatRoom(context.Background(), "room-1", "client-1", "{}")
	if err == nil || !strings.Contains(err.Error(), "room not found") {
		t.Fatalf("expected graphql error surfaced, got %v", err)
	}
}
