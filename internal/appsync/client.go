package appsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wa-bridge/internal/metrics"
)

// Client talks to the chat-room core backend through its GraphQL gateway.
type Client struct {
	logger  *slog.Logger
	apiURL  string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds GraphQL gateway client configuration.
type Config struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// New creates a new gateway client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "appsync"),
		apiURL:  cfg.APIURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// ChatRoom identifies a freshly created conversation.
type ChatRoom struct {
	ChatRoomID string `json:"chatRoomId"`
	ChannelID  string `json:"channelId"`
}

// QuotedMessage references a previously sent message inside a new one.
type QuotedMessage struct {
	MessageID        *string `json:"messageId"`
	MessageAuthorID  *string `json:"messageAuthorId"`
	MessageChannelID *string `json:"messageChannelId"`
	MessageText      *string `json:"messageText"`
	MessageContent   *string `json:"messageContent"`
}

// MessageInput carries everything needed to append a message to a chat room.
// MessageContent holds the JSON-encoded structured content list, or nil for
// plain text messages.
type MessageInput struct {
	ChatRoomID       string
	MessageAuthorID  string
	MessageChannelID string
	MessageText      *string
	MessageContent   *string
	LocalMessageID   *string
	QuotedMessage    *QuotedMessage
	IsClient         bool
}

// ChatRoomMessage mirrors the backend's message entity.
type ChatRoomMessage struct {
	ChatRoomID          string  `json:"chatRoomId"`
	ChannelID           string  `json:"channelId"`
	MessageID           string  `json:"messageId"`
	MessageAuthorID     string  `json:"messageAuthorId"`
	MessageChannelID    string  `json:"messageChannelId"`
	MessageText         *string `json:"messageText"`
	MessageContent      *string `json:"messageContent"`
	MessageIsSent       bool    `json:"messageIsSent"`
	MessageIsDelivered  bool    `json:"messageIsDelivered"`
	MessageIsRead       bool    `json:"messageIsRead"`
	LocalMessageID      *string `json:"localMessageId"`
	MessageCreatedAtISO string  `json:"messageCreatedDateTime"`
}

const createChatRoomMutation = `
mutation CreateChatRoom (
    $channelTechnicalId: String!,
    $channelTypeName: String!,
    $clientId: String!,
    $whatsappChatId: String,
    $lastMessageContent: String
) {
    createChatRoom(
        input: {
            channelTechnicalId: $channelTechnicalId,
            channelTypeName: $channelTypeName,
            clientId: $clientId,
            whatsappChatId: $whatsappChatId,
            lastMessageContent: $lastMessageContent
        }
    ) {
        chatRoomId
        channelId
        chatRoomStatus
    }
}`

// CreateChatRoom creates a conversation for a brand-new WhatsApp chat. The
// lastMessage preview is the JSON-encoded {messageText, messageContent} pair used
// for list-view display, independent of the later full message write.
func (c *Client) CreateChatRoom(ctx context.Context, botToken, clientID, whatsappChatID, lastMessage string) (*ChatRoom, error) {
	variables := map[string]any{
		"channelTechnicalId": botToken,
		"channelTypeName":    "whatsapp",
		"clientId":           clientID,
		"whatsappChatId":     whatsappChatID,
		"lastMessageContent": lastMessage,
	}

	var result struct {
		CreateChatRoom ChatRoom `json:"createChatRoom"`
	}
	if err := c.execute(ctx, "createChatRoom", createChatRoomMutation, variables, &result); err != nil {
		return nil, err
	}
	if result.CreateChatRoom.ChatRoomID == "" {
		return nil, fmt.Errorf("createChatRoom: backend returned no chat room id")
	}
	return &result.CreateChatRoom, nil
}

const activateClosedChatRoomMutation = `
mutation ActivateClosedChatRoom (
    $chatRoomId: String!,
    $clientId: String!,
    $lastMessageContent: String
) {
    activateClosedChatRoom(
        input: {
            chatRoomId: $chatRoomId,
            clientId: $clientId,
            lastMessageContent: $lastMessageContent
        }
    ) {
        chatRoomId
        channelId
        chatRoomStatus
    }
}`

// ActivateClosedChatRoom reopens a completed conversation when the client writes again.
func (c *Client) ActivateClosedChatRoom(ctx context.Context, chatRoomID, clientID, lastMessage string) error {
	variables := map[string]any{
		"chatRoomId":         chatRoomID,
		"clientId":           clientID,
		"lastMessageContent": lastMessage,
	}
	return c.execute(ctx, "activateClosedChatRoom", activateClosedChatRoomMutation, variables, nil)
}

const createChatRoomMessageMutation = `
mutation CreateChatRoomMessage (
    $chatRoomId: String!,
    $messageAuthorId: String!,
    $messageChannelId: String!,
    $messageText: String,
    $messageContent: String,
    $localMessageId: String,
    $isClient: Boolean,
    $quotedMessage: QuotedMessageInput
) {
    createChatRoomMessage(
        input: {
            chatRoomId: $chatRoomId,
            messageAuthorId: $messageAuthorId,
            messageChannelId: $messageChannelId,
            messageText: $messageText,
            messageContent: $messageContent,
            localMessageId: $localMessageId,
            isClient: $isClient,
            quotedMessage: $quotedMessage
        }
    ) {
        chatRoomId
        channelId
        messageId
        messageAuthorId
        messageChannelId
        messageText
        messageContent
        messageIsSent
        messageIsDelivered
        messageIsRead
        localMessageId
        messageCreatedDateTime
    }
}`

// CreateChatRoomMessage appends a message to an existing (possibly just-created)
// conversation and returns the created entity.
func (c *Client) CreateChatRoomMessage(ctx context.Context, input MessageInput) (*ChatRoomMessage, error) {
	variables := map[string]any{
		"chatRoomId":       input.ChatRoomID,
		"messageAuthorId":  input.MessageAuthorID,
		"messageChannelId": input.MessageChannelID,
		"messageText":      input.MessageText,
		"messageContent":   input.MessageContent,
		"localMessageId":   input.LocalMessageID,
		"isClient":         input.IsClient,
		"quotedMessage":    input.QuotedMessage,
	}

	var result struct {
		CreateChatRoomMessage ChatRoomMessage `json:"createChatRoomMessage"`
	}
	if err := c.execute(ctx, "createChatRoomMessage", createChatRoomMessageMutation, variables, &result); err != nil {
		return nil, err
	}
	if result.CreateChatRoomMessage.MessageID == "" {
		return nil, fmt.Errorf("createChatRoomMessage: backend returned no message id")
	}
	return &result.CreateChatRoomMessage, nil
}

const updateMessageDataMutation = `
mutation UpdateMessageData (
    $chatRoomId: String!,
    $messagesIds: [String!]!,
    $messageStatus: String!
) {
    updateMessageData(
        input: {
            chatRoomId: $chatRoomId,
            messagesIds: $messagesIds,
            messageStatus: $messageStatus
        }
    ) {
        chatRoomId
    }
}`

// MessageStatusDelivered marks messages as sent and delivered on the backend.
const MessageStatusDelivered = "MESSAGE_IS_DELIVERED"

// UpdateMessageData flips delivery bookkeeping and unread counters for the given messages.
func (c *Client) UpdateMessageData(ctx context.Context, chatRoomID string, messageIDs []string, status string) error {
	variables := map[string]any{
		"chatRoomId":    chatRoomID,
		"messagesIds":   messageIDs,
		"messageStatus": status,
	}
	return c.execute(ctx, "updateMessageData", updateMessageDataMutation, variables, nil)
}

func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]any, dest any) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.AppSyncRequests.WithLabelValues(operation, "error").Inc()
		}
		return fmt.Errorf("appsync %s request: %w", operation, err)
	}
	defer res.Body.Close()

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.AppSyncRequests.WithLabelValues(operation, statusLabel).Inc()
		c.metrics.AppSyncLatency.WithLabelValues(operation, statusLabel).Observe(time.Since(start).Seconds())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("appsync %s read response: %w", operation, err)
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("appsync %s error: status=%d body=%s", operation, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("appsync %s decode response: %w", operation, err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("appsync %s error: %s", operation, envelope.Errors[0].Message)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("appsync %s decode data: %w", operation, err)
	}
	return nil
}
