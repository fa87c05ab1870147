package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"conversation-service/internal/models"
)

// Client transmits outbound messages through the external message gateway.
// The gateway's wire protocol and status callbacks live on its side; this
// wrapper only ships the canonical record.
type Client interface {
	Send(ctx context.Context, msg models.Message) error
}

// NewClient builds an HTTP gateway client, or a noop client when no gateway
// URL is configured.
func NewClient(baseURL string) Client {
	if baseURL == "" {
		log.Printf("message gateway disabled, using noop: empty gateway url")
		return noopClient{}
	}
	return &httpClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

func (c *httpClient) Send(ctx context.Context, msg models.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type noopClient struct{}

func (noopClient) Send(ctx context.Context, msg models.Message) error {
	log.Printf("gateway noop send message_id=%s conversation=%s", msg.ID, msg.ConversationKey)
	return nil
}
