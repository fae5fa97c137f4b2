package repo

// ChatRoomState aggregates the conversation record associated with a WhatsApp chat.
// Status and ClientID stay nil when the backend has not populated them yet.
type ChatRoomState struct {
	ChatRoomID string
	ChannelID  string
	Status     *string
	ClientID   *string
}

// ChatRoomDelivery carries what is needed to reach a chat room's WhatsApp side.
type ChatRoomDelivery struct {
	WhatsAppChatID string
	BotToken       string
}

// IdentifiedUserProfile carries data used to create an identified user record.
type IdentifiedUserProfile struct {
	WhatsAppUsername string
	WhatsAppProfile  string
	PhoneNumber      string
	Metadata         map[string]any
}

// ChatRoomStatusCompleted is the status a closed conversation carries before reactivation.
const ChatRoomStatusCompleted = "completed"
