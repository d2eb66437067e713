package line

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/careline-tw/careline/pkg/logger"
)

const (
	replyPath = "/v2/bot/message/reply"

	retryBase  = 200 * time.Millisecond
	maxRetries = 2
)

// Client sends replies through the messaging API. Transient upstream
// failures are retried with bounded exponential backoff; 4xx responses
// are terminal because the reply token is single-use.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, channelAccessToken string) (*Client, error) {
	if channelAccessToken == "" {
		return nil, fmt.Errorf("empty channel access token")
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(channelAccessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &Client{http: httpClient}, nil
}

// Reply answers one event. Up to five messages may ride on a single
// reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...any) error {
	if replyToken == "" {
		return fmt.Errorf("empty reply token")
	}
	if len(messages) == 0 || len(messages) > 5 {
		return fmt.Errorf("reply needs 1 to 5 messages, got %d", len(messages))
	}
	raw := make([]json.RawMessage, 0, len(messages))
	for _, msg := range messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal reply message: %w", err)
		}
		raw = append(raw, encoded)
	}
	body := replyRequest{ReplyToken: replyToken, Messages: raw}

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	log := logger.FromContext(ctx)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			Post(replyPath)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("reply request: %w", err))
		}
		status := resp.StatusCode()
		switch {
		case status < 300:
			return nil
		case status >= 500:
			log.Warn("reply failed upstream, retrying", "status", status)
			return retry.RetryableError(fmt.Errorf("reply failed: status %d: %s", status, resp.String()))
		default:
			return fmt.Errorf("reply rejected: status %d: %s", status, resp.String())
		}
	})
}
