package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrHandleExists reports that an identified user with the same WhatsApp username
// already exists. The caller resolves the existing user via FindUserByWhatsAppUsername.
var ErrHandleExists = errors.New("repo: whatsapp username already taken")

// FindUserByWhatsAppUsername returns the client user id linked to the identified
// user with the given handle, or "" when no such user exists. Internal staff users
// are excluded from the lookup.
func (r *Repository) FindUserByWhatsAppUsername(ctx context.Context, username string) (string, error) {
	const q = `
SELECT users.user_id
FROM users
LEFT JOIN identified_users ON users.identified_user_id = identified_users.identified_user_id
WHERE identified_users.whatsapp_username = $1
  AND users.internal_user_id IS NULL
LIMIT 1;
`
	var userID string
	if err := r.pool.QueryRow(ctx, q, username).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find user by whatsapp username: %w", err)
	}
	return userID, nil
}

// CreateIdentifiedUser inserts an identified user and its linking users row, returning
// the new client user id. The two inserts commit independently; a duplicate-handle
// race surfaces as ErrHandleExists and the caller re-resolves the winner's id.
func (r *Repository) CreateIdentifiedUser(ctx context.Context, profile IdentifiedUserProfile) (string, error) {
	metadata, err := json.Marshal(profile.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal identified user metadata: %w", err)
	}

	const insertIdentified = `
INSERT INTO identified_users (
    identified_user_primary_phone_number,
    metadata,
    whatsapp_profile,
    whatsapp_username
) VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT identified_users_whatsapp_username_key DO NOTHING
RETURNING identified_user_id;
`
	var identifiedUserID string
	err = r.pool.QueryRow(ctx, insertIdentified,
		profile.PhoneNumber,
		metadata,
		profile.WhatsAppProfile,
		profile.WhatsAppUsername,
	).Scan(&identifiedUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrHandleExists
		}
		return "", fmt.Errorf("insert identified user: %w", err)
	}

	const insertUser = `
INSERT INTO users (identified_user_id)
VALUES ($1)
RETURNING user_id;
`
	var userID string
	if err := r.pool.QueryRow(ctx, insertUser, identifiedUserID).Scan(&userID); err != nil {
		return "", fmt.Errorf("insert user link: %w", err)
	}
	return userID, nil
}
