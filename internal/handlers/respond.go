package handlers

import (
	"encoding/json"
	"net/http"

	"wa-bridge/internal/message"
)

// statusResponse is the minimal success body every entry point returns.
type statusResponse struct {
	StatusCode int `json:"statusCode"`
}

func writeStatusOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, statusResponse{StatusCode: http.StatusOK})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// encodePreview builds the JSON-encoded {messageText, messageContent} pair used
// as the chat-room list preview, independent of the full message write.
func encodePreview(text *string, content []message.Content) string {
	preview := struct {
		MessageText    *string           `json:"messageText"`
		MessageContent []message.Content `json:"messageContent"`
	}{
		MessageText:    text,
		MessageContent: content,
	}
	encoded, err := json.Marshal(preview)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// encodeContent serializes a structured content list for the backend, or nil for
// text-only messages.
func encodeContent(content []message.Content) *string {
	if len(content) == 0 {
		return nil
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil
	}
	str := string(encoded)
	return &str
}
