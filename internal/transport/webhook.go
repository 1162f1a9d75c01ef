package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dsync-go/internal/dsync"
)

// webhookResponse is the subset of a Discord-style message object that
// dsync reads back after an upload or edit.
type webhookResponse struct {
	ID          string `json:"id"`
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
}

// WebhookTransport posts blobs as message attachments to chat webhooks.
// Endpoints carry their access token in the URL and are never logged.
type WebhookTransport struct {
	client          *http.Client
	transferTimeout time.Duration
	probeTimeout    time.Duration
	logger          dsync.Logger
}

// NewWebhookTransport creates a WebhookTransport. A nil client uses
// http.DefaultClient.
func NewWebhookTransport(client *http.Client, transferTimeout, probeTimeout time.Duration, logger dsync.Logger) *WebhookTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = dsync.NewNopLogger()
	}
	return &WebhookTransport{
		client:          client,
		transferTimeout: transferTimeout,
		probeTimeout:    probeTimeout,
		logger:          logger,
	}
}

func (t *WebhookTransport) Upload(ctx context.Context, endpoint string, data []byte, name string) (*dsync.RemoteBlob, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", dsync.ErrConfiguration)
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()

	body, contentType, err := multipartBody(name, data, "")
	if err != nil {
		return nil, err
	}
	t.logger.Debug("uploading blob", "name", name, "size", len(data))
	return t.send(ctx, http.MethodPost, u.String(), body, contentType)
}

func (t *WebhookTransport) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	target := messageURL(endpoint, messageID)
	body, contentType, err := multipartBody(name, data, `{"attachments":[]}`)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("patching blob", "message_id", messageID, "name", name, "size", len(data))
	return t.send(ctx, http.MethodPatch, target, body, contentType)
}

func (t *WebhookTransport) Delete(ctx context.Context, endpoint, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, messageURL(endpoint, messageID), nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w: %w", dsync.ErrTransport, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w: %w", messageID, dsync.ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deleting message %s: status %d: %w", messageID, resp.StatusCode, dsync.ErrTransport)
	}
	return nil
}

func (t *WebhookTransport) Fetch(ctx context.Context, locator string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w: %w", dsync.ErrTransport, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching blob: %w: %w", dsync.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching blob: status %d: %w", resp.StatusCode, dsync.ErrTransport)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w: %w", dsync.ErrTransport, err)
	}
	return data, nil
}

// Probe issues a HEAD request. Redirects are followed; only a final 200
// counts as available.
func (t *WebhookTransport) Probe(ctx context.Context, locator string) error {
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w: %w", dsync.ErrTransport, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing blob: %w: %w", dsync.ErrTransport, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probing blob: status %d: %w", resp.StatusCode, dsync.ErrTransport)
	}
	return nil
}

func (t *WebhookTransport) send(ctx context.Context, method, target string, body *bytes.Buffer, contentType string) (*dsync.RemoteBlob, error) {
	ctx, cancel := context.WithTimeout(ctx, t.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w: %w", method, dsync.ErrTransport, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s blob: %w: %w", strings.ToLower(method), dsync.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s blob: status %d: %w", strings.ToLower(method), resp.StatusCode, dsync.ErrTransport)
	}

	var parsed webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w: %w", dsync.ErrTransport, err)
	}
	return &dsync.RemoteBlob{MessageID: parsed.ID, Locator: extractLocator(parsed)}, nil
}

// extractLocator returns the URL of the first attachment, or "" when the
// response carries none.
func extractLocator(resp webhookResponse) string {
	if len(resp.Attachments) == 0 {
		return ""
	}
	return resp.Attachments[0].URL
}

func messageURL(endpoint, messageID string) string {
	return strings.TrimRight(endpoint, "/") + "/messages/" + url.PathEscape(messageID)
}

func multipartBody(name string, data []byte, payloadJSON string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if payloadJSON != "" {
		if err := w.WriteField("payload_json", payloadJSON); err != nil {
			return nil, "", fmt.Errorf("writing payload: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var _ dsync.Transport = (*WebhookTransport)(nil)
