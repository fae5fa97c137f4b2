package message

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// ErrUnsupportedType reports a payload type the bridge cannot persist. The
// dispatcher answers it with a provider-side notice instead of an error response.
var ErrUnsupportedType = errors.New("message: unsupported payload type")

// MediaFetcher downloads attachment binaries from the provider.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, botToken, mediaID string) ([]byte, string, error)
}

// Uploader stores attachment binaries and returns their durable URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Normalizer classifies an inbound payload into a uniform (display text,
// structured content) pair, fetching and re-uploading binary attachments as needed.
type Normalizer struct {
	media  MediaFetcher
	files  Uploader
	logger *slog.Logger
}

// NewNormalizer creates a normalizer over the given media and storage collaborators.
func NewNormalizer(media MediaFetcher, files Uploader, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		media:  media,
		files:  files,
		logger: logger.With("component", "normalizer"),
	}
}

// Normalize maps an inbound message to (text, content). The content list is nil
// exactly for text-only payloads and holds a single element otherwise. Attachments
// are stored under chat_rooms/{chatRoomID}/{attachmentID}.{ext}.
func (n *Normalizer) Normalize(ctx context.Context, msg Inbound, botToken, chatRoomID string) (*string, []Content, error) {
	switch msg.Type {
	case TypeText:
		if msg.Text == nil {
			return nil, nil, fmt.Errorf("text message without body")
		}
		body := msg.Text.Body
		return &body, nil, nil

	case TypeLocation:
		if msg.Location == nil {
			return nil, nil, fmt.Errorf("location message without coordinates")
		}
		lat, lon := msg.Location.Latitude, msg.Location.Longitude
		return nil, []Content{{
			Category:  "location",
			Latitude:  &lat,
			Longitude: &lon,
		}}, nil

	case TypeImage:
		return n.normalizeMedia(ctx, msg.Image, botToken, chatRoomID, "image", true)

	case TypeVideo:
		return n.normalizeMedia(ctx, msg.Video, botToken, chatRoomID, "video", false)

	case TypeDocument:
		return n.normalizeMedia(ctx, msg.Document, botToken, chatRoomID, "document", false)

	case TypeVoice:
		return n.normalizeMedia(ctx, msg.Voice, botToken, chatRoomID, "audio", false)

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedType, msg.Type)
	}
}

func (n *Normalizer) normalizeMedia(ctx context.Context, payload *MediaPayload, botToken, chatRoomID, category string, decodeDimensions bool) (*string, []Content, error) {
	if payload == nil || payload.ID == "" {
		return nil, nil, fmt.Errorf("%s message without media id", category)
	}

	data, fetchedType, err := n.media.FetchMedia(ctx, botToken, payload.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s media: %w", category, err)
	}

	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = fetchedType
	}

	content := Content{
		Category: category,
		FileSize: int64(len(data)),
		MimeType: mimeType,
	}

	if decodeDimensions {
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, nil, fmt.Errorf("decode image dimensions: %w", err)
		}
		bounds := img.Bounds()
		width, height := bounds.Dx(), bounds.Dy()
		content.Width = &width
		content.Height = &height
	}

	attachmentID := uuid.NewString()
	extension := attachmentExtension(category, payload, mimeType)
	key := fmt.Sprintf("chat_rooms/%s/%s.%s", chatRoomID, attachmentID, extension)

	url, err := n.files.Upload(ctx, key, data, mimeType)
	if err != nil {
		return nil, nil, fmt.Errorf("upload %s attachment: %w", category, err)
	}

	content.URL = url
	content.FileExtension = extension
	if payload.Filename != "" {
		content.FileName = payload.Filename
	} else {
		content.FileName = attachmentID + "." + extension
	}

	var text *string
	if payload.Caption != "" {
		caption := payload.Caption
		text = &caption
	}
	return text, []Content{content}, nil
}

// attachmentExtension derives the storage file extension. Images are always stored
// as jpeg; documents follow their provider-supplied filename; everything else falls
// back to the mime type.
func attachmentExtension(category string, payload *MediaPayload, mimeType string) string {
	if category == "image" {
		return "jpeg"
	}
	if category == "document" && payload.Filename != "" {
		if ext := strings.TrimPrefix(filepath.Ext(payload.Filename), "."); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return extensionFromMime(mimeType)
}

func extensionFromMime(mimeType string) string {
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil || parsed == "" {
		return "bin"
	}
	if idx := strings.Index(parsed, "/"); idx >= 0 && idx+1 < len(parsed) {
		return strings.ToLower(parsed[idx+1:])
	}
	return "bin"
}
