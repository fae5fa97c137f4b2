package message

// Inbound mirrors the messages[0] element of the provider webhook body.
type Inbound struct {
	Type     string           `json:"type"`
	Text     *TextPayload     `json:"text,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
	Image    *MediaPayload    `json:"image,omitempty"`
	Video    *MediaPayload    `json:"video,omitempty"`
	Document *MediaPayload    `json:"document,omitempty"`
	Voice    *MediaPayload    `json:"voice,omitempty"`
}

// TextPayload is the body of a plain text message.
type TextPayload struct {
	Body string `json:"body"`
}

// LocationPayload carries a shared geolocation.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MediaPayload describes a binary attachment hosted by the provider.
type MediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Content is the typed description of a non-text message payload. Exactly one
// element is produced per supported non-text message.
type Content struct {
	Category      string   `json:"category"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	FileName      string   `json:"fileName,omitempty"`
	FileExtension string   `json:"fileExtension,omitempty"`
	FileSize      int64    `json:"fileSize,omitempty"`
	MimeType      string   `json:"mimeType,omitempty"`
	URL           string   `json:"url,omitempty"`
	Width         *int     `json:"width,omitempty"`
	Height        *int     `json:"height,omitempty"`
}

// Payload type names as declared by the provider webhook.
const (
	TypeText     = "text"
	TypeLocation = "location"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeVoice    = "voice"
)
