package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiHost is the Bot API endpoint; overridable for tests.
const apiHost = "https://api.telegram.org"

// Client calls the Telegram Bot API over HTTPS.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the given bot token. The HTTP timeout
// must exceed the long-poll wait, otherwise every getUpdates call aborts
// early.
func NewClient(token string, pollTimeout time.Duration) *Client {
	return &Client{
		token:   token,
		baseURL: apiHost,
		http:    &http.Client{Timeout: pollTimeout + 30*time.Second},
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// call POSTs a JSON payload to a Bot API method and decodes result into out.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	u := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram %s: %s", method, env.Description)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

// GetUpdates long-polls for updates after offset, waiting up to timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text to a chat, optionally with a reply keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *ReplyMarkup) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// GetFile resolves a file id into a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile streams the content behind a getFile path. The caller must
// close the returned reader.
func (c *Client) DownloadFile(ctx context.Context, filePath string) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimPrefix(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
