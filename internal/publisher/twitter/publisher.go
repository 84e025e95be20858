// Package twitter posts status messages through the Twitter API v2
// tweet-creation endpoint, signed with OAuth 1.0a user context.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/dghubble/oauth1"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/config"
	"github.com/atlwait/waitbot/internal/waittimes"
)

const (
	createTweetPath = "/2/tweets"

	// maxPostRunes is the platform's hard length limit, counted in runes.
	maxPostRunes = 280
)

// Publisher submits messages as tweets on behalf of the configured account.
// The OAuth1 transport signs every request; the client is built once and
// reused across cycles.
type Publisher struct {
	client *resty.Client
	logger *zap.Logger
}

// New builds a Publisher from posting credentials. Callers validate the
// credentials first; New does not talk to the network.
func New(cfg config.TwitterConfig, timeout time.Duration, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}

	oauthConfig := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
	httpClient := oauthConfig.Client(oauth1.NoContext, token)

	client := resty.NewWithClient(httpClient)
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(timeout)

	return &Publisher{client: client, logger: logger}
}

type createTweetRequest struct {
	Text string `json:"text"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// apiError matches the problem-details shape v2 endpoints return.
type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Publish posts text as a tweet and returns the created tweet's ID.
// Messages that cannot possibly be accepted are rejected before any
// network call.
func (p *Publisher) Publish(ctx context.Context, text string) (waittimes.PostResult, error) {
	if text == "" {
		return waittimes.PostResult{}, fmt.Errorf("%w: empty message", waittimes.ErrPostRejected)
	}
	if n := utf8.RuneCountInString(text); n > maxPostRunes {
		return waittimes.PostResult{}, fmt.Errorf("%w: message is %d runes, limit is %d",
			waittimes.ErrPostRejected, n, maxPostRunes)
	}

	res, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(createTweetRequest{Text: text}).
		Post(createTweetPath)
	if err != nil {
		return waittimes.PostResult{}, fmt.Errorf("post tweet: %w", err)
	}

	if res.StatusCode() != http.StatusCreated {
		return waittimes.PostResult{}, classifyStatus(res.StatusCode(), res.Body())
	}

	var created createTweetResponse
	if err := json.Unmarshal(res.Body(), &created); err != nil {
		return waittimes.PostResult{}, fmt.Errorf("decode tweet response: %w", err)
	}
	if created.Data.ID == "" {
		return waittimes.PostResult{}, fmt.Errorf("tweet response carried no id")
	}

	p.logger.Debug("tweet created", zap.String("tweet_id", created.Data.ID))
	return waittimes.PostResult{ID: created.Data.ID}, nil
}

// classifyStatus maps API failure statuses onto the sentinel errors the
// runner keys its cycle outcomes on.
func classifyStatus(status int, body []byte) error {
	detail := errorDetail(body)
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", waittimes.ErrAuth, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", waittimes.ErrRateLimited, detail)
	case http.StatusBadRequest, http.StatusForbidden:
		// 403 covers duplicate tweets among other content refusals.
		return fmt.Errorf("%w: %s", waittimes.ErrPostRejected, detail)
	}
	return fmt.Errorf("posting api returned status %d: %s", status, detail)
}

// errorDetail digs a human-readable reason out of an error body, falling
// back to the raw payload when it is not the documented shape.
func errorDetail(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	if len(body) == 0 {
		return "no response body"
	}
	const limit = 200
	s := string(body)
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
