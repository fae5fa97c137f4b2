package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates that a required lookup row does not exist.
var ErrNotFound = errors.New("repo: not found")

// BotTokenByBusinessAccount returns the provider credential of a business account.
func (r *Repository) BotTokenByBusinessAccount(ctx context.Context, businessAccount string) (string, error) {
	const q = `
SELECT channels.channel_technical_id
FROM whatsapp_business_accounts
LEFT JOIN channels ON whatsapp_business_accounts.channel_id = channels.channel_id
WHERE whatsapp_business_accounts.business_account = $1
LIMIT 1;
`
	var token string
	if err := r.pool.QueryRow(ctx, q, businessAccount).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: business account %s", ErrNotFound, businessAccount)
		}
		return "", fmt.Errorf("get bot token: %w", err)
	}
	return token, nil
}

// BotTokenByChatRoom returns the provider credential of the channel a chat room belongs to.
func (r *Repository) BotTokenByChatRoom(ctx context.Context, chatRoomID string) (string, error) {
	const q = `
SELECT channels.channel_technical_id::text
FROM chat_rooms
LEFT JOIN channels ON chat_rooms.channel_id = channels.channel_id
WHERE chat_rooms.chat_room_id = $1
LIMIT 1;
`
	var token string
	if err := r.pool.QueryRow(ctx, q, chatRoomID).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: chat room %s", ErrNotFound, chatRoomID)
		}
		return "", fmt.Errorf("get bot token by chat room: %w", err)
	}
	return token, nil
}

// ChatRoomDelivery returns the WhatsApp chat identifier and bot token of a chat room.
func (r *Repository) ChatRoomDelivery(ctx context.Context, chatRoomID string) (*ChatRoomDelivery, error) {
	const q = `
SELECT
    whatsapp_chat_rooms.whatsapp_chat_id,
    channels.channel_technical_id
FROM chat_rooms
LEFT JOIN whatsapp_chat_rooms ON chat_rooms.chat_room_id = whatsapp_chat_rooms.chat_room_id
LEFT JOIN channels ON chat_rooms.channel_id = channels.channel_id
WHERE chat_rooms.chat_room_id = $1
LIMIT 1;
`
	var delivery ChatRoomDelivery
	if err := r.pool.QueryRow(ctx, q, chatRoomID).Scan(&delivery.WhatsAppChatID, &delivery.BotToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: chat room %s", ErrNotFound, chatRoomID)
		}
		return nil, fmt.Errorf("get chat room delivery: %w", err)
	}
	return &delivery, nil
}
