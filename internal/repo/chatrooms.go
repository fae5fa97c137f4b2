package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ChatRoomState returns the conversation associated with a WhatsApp chat identifier.
// A nil state without error means no conversation exists yet, which is a valid
// starting point for a brand-new chat.
func (r *Repository) ChatRoomState(ctx context.Context, whatsappChatID string) (*ChatRoomState, error) {
	const q = `
SELECT
    chat_rooms.chat_room_id,
    chat_rooms.channel_id,
    chat_rooms.chat_room_status,
    (
        SELECT users.user_id
        FROM chat_rooms_users_relationship
        LEFT JOIN users ON chat_rooms_users_relationship.user_id = users.user_id
        WHERE chat_rooms_users_relationship.chat_room_id = chat_rooms.chat_room_id
          AND (
              users.internal_user_id IS NULL AND users.identified_user_id IS NOT NULL
              OR
              users.internal_user_id IS NULL AND users.unidentified_user_id IS NOT NULL
          )
        LIMIT 1
    ) AS client_id
FROM chat_rooms
LEFT JOIN whatsapp_chat_rooms ON chat_rooms.chat_room_id = whatsapp_chat_rooms.chat_room_id
WHERE whatsapp_chat_rooms.whatsapp_chat_id = $1
LIMIT 1;
`
	var state ChatRoomState
	err := r.pool.QueryRow(ctx, q, whatsappChatID).Scan(
		&state.ChatRoomID,
		&state.ChannelID,
		&state.Status,
		&state.ClientID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat room state: %w", err)
	}
	return &state, nil
}
