package whatsapp

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

const (
	apiKeyHeader = "D360-Api-Key"

	// Fixed template namespace used by the re-engagement flow.
	templateNamespace = "98519ab7_9b3c_4f38_87d3_50846c76fcf5"
	templateTTL       = "P1D"
	templateLanguage  = "ru"
)

// Client provides typed access to the WhatsApp Business provider HTTP API.
// The bot token is supplied per call; one client serves every business account.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds provider client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a new provider client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "whatsapp"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

type textMessage struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText posts a plain text message to the provider on behalf of a business account.
func (c *Client) SendText(ctx context.Context, botToken, to, text string) error {
	var msg textMessage
	msg.To = to
	msg.Type = "text"
	msg.Text.Body = text

	if err := c.post(ctx, botToken, "/v1/messages", msg, nil); err != nil {
		return fmt.Errorf("send text message: %w", err)
	}
	if c.metrics != nil {
		c.metrics.OutboundMessages.WithLabelValues("text").Inc()
	}
	return nil
}

type templateMessage struct {
	To   string `json:"to"`
	TTL  string `json:"ttl"`
	Type string `json:"type"`
	HSM  struct {
		Namespace   string `json:"namespace"`
		ElementName string `json:"element_name"`
		Language    struct {
			Policy string `json:"policy"`
			Code   string `json:"code"`
		} `json:"language"`
	} `json:"hsm"`
}

// SendTemplate posts an hsm template message used for out-of-window re-engagement.
func (c *Client) SendTemplate(ctx context.Context, botToken, to, templateName string) error {
	var msg templateMessage
	msg.To = to
	msg.TTL = templateTTL
	msg.Type = "hsm"
	msg.HSM.Namespace = templateNamespace
	msg.HSM.ElementName = templateName
	msg.HSM.Language.Policy = "deterministic"
	msg.HSM.Language.Code = templateLanguage

	if err := c.post(ctx, botToken, "/v1/messages", msg, nil); err != nil {
		return fmt.Errorf("send template message: %w", err)
	}
	if c.metrics != nil {
		c.metrics.OutboundMessages.WithLabelValues("template").Inc()
	}
	return nil
}

// FetchMedia downloads a binary attachment from the provider media endpoint.
// It returns the raw bytes and the reported content type.
func (c *Client) FetchMedia(ctx context.Context, botToken, mediaID string) ([]byte, string, error) {
	endpoint := "/v1/media/" + mediaID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new media request: %w", err)
	}
	req.Header.Set(apiKeyHeader, botToken)

	res, err := c.do(req, "/v1/media")
	if err != nil {
		return nil, "", fmt.Errorf("fetch media %s: %w", mediaID, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	return data, res.Header.Get("Content-Type"), nil
}

// Templates returns the raw template configuration registered for a business account.
func (c *Client) Templates(ctx context.Context, botToken string) (json.RawMessage, error) {
	endpoint := "/v1/configs/templates"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new templates request: %w", err)
	}
	req.Header.Set(apiKeyHeader, botToken)

	res, err := c.do(req, endpoint)
	if err != nil {
		return nil, fmt.Errorf("get templates: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read templates body: %w", err)
	}
	return json.RawMessage(body), nil
}

func (c *Client) post(ctx context.Context, botToken, endpoint string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, botToken)

	res, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.WhatsAppRequests.WithLabelValues(endpoint, "error").Inc()
		}
		return nil, fmt.Errorf("whatsapp request: %w", err)
	}

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.WhatsAppRequests.WithLabelValues(endpoint, statusLabel).Inc()
		c.metrics.WhatsAppLatency.WithLabelValues(endpoint, statusLabel).Observe(time.Since(start).Seconds())
	}

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("whatsapp error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return res, nil
}
