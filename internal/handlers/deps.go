package handlers

import (
	"context"
	"encoding/json"
	"time"

	"wa-bridge/internal/appsync"
	"wa-bridge/internal/message"
	"wa-bridge/internal/repo"
)

// Store is the slice of the repository the dispatchers need.
type Store interface {
	BotTokenByBusinessAccount(ctx context.Context, businessAccount string) (string, error)
	BotTokenByChatRoom(ctx context.Context, chatRoomID string) (string, error)
	ChatRoomState(ctx context.Context, whatsappChatID string) (*repo.ChatRoomState, error)
	ChatRoomDelivery(ctx context.Context, chatRoomID string) (*repo.ChatRoomDelivery, error)
	FindUserByWhatsAppUsername(ctx context.Context, username string) (string, error)
	CreateIdentifiedUser(ctx context.Context, profile repo.IdentifiedUserProfile) (string, error)
}

// Backend mutates conversations through the GraphQL gateway.
type Backend interface {
	CreateChatRoom(ctx context.Context, botToken, clientID, whatsappChatID, lastMessage string) (*appsync.ChatRoom, error)
	ActivateClosedChatRoom(ctx context.Context, chatRoomID, clientID, lastMessage string) error
	CreateChatRoomMessage(ctx context.Context, input appsync.MessageInput) (*appsync.ChatRoomMessage, error)
	UpdateMessageData(ctx context.Context, chatRoomID string, messageIDs []string, status string) error
}

// Notifier posts messages back to the WhatsApp provider.
type Notifier interface {
	SendText(ctx context.Context, botToken, to, text string) error
	SendTemplate(ctx context.Context, botToken, to, templateName string) error
	Templates(ctx context.Context, botToken string) (json.RawMessage, error)
}

// Normalizer classifies inbound payloads into (text, structured content).
type Normalizer interface {
	Normalize(ctx context.Context, msg message.Inbound, botToken, chatRoomID string) (*string, []message.Content, error)
}

// TokenCache is an optional read-through cache for bot tokens.
type TokenCache interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
}
