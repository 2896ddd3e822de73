// Package rep4rep is a client for the rep4rep.com public API.
package rep4rep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/rep4rep/steam-commenter/internal/config"
	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
)

const serviceName = "rep4rep"

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	sleep   Sleeper
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithRateLimit paces outgoing requests. Zero or less disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(cl *Client) {
		if perSecond <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithSleeper(s Sleeper) Option {
	return func(cl *Client) { cl.sleep = s }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: config.APIRequestTimeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddSteamProfile registers a Steam identity. A profile the service already
// knows comes back as ALREADY_EXISTS.
func (c *Client) AddSteamProfile(ctx context.Context, steamID string) error {
	body, err := c.do(ctx, http.MethodPost, "/user/steamprofiles/add", url.Values{
		"steamProfile": {steamID},
	})
	if err != nil {
		return err
	}
	return checkAPIError(body)
}

func (c *Client) GetSteamProfiles(ctx context.Context) ([]model.SteamProfile, error) {
	body, err := c.do(ctx, http.MethodGet, "/user/steamprofiles", nil)
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(body); err != nil {
		return nil, err
	}

	var profiles []model.SteamProfile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, apperrors.MalformedResponse(string(body)).WithCause(err)
	}
	return profiles, nil
}

// GetTasks lists open tasks for a remote profile id.
func (c *Client) GetTasks(ctx context.Context, remoteProfileID string) ([]model.Task, error) {
	body, err := c.do(ctx, http.MethodGet, "/tasks", url.Values{
		"steamProfile": {remoteProfileID},
	})
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(body); err != nil {
		return nil, err
	}

	var tasks []model.Task
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, apperrors.MalformedResponse(string(body)).WithCause(err)
	}
	return tasks, nil
}

func (c *Client) CompleteTask(ctx context.Context, taskID, commentID, authorProfileID string) (*model.CompleteTaskResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/tasks/complete", url.Values{
		"taskId":               {taskID},
		"commentId":            {commentID},
		"authorSteamProfileId": {authorProfileID},
	})
	if err != nil {
		return nil, err
	}
	if err := checkAPIError(body); err != nil {
		return nil, err
	}

	var result model.CompleteTaskResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.MalformedResponse(string(body)).WithCause(err)
	}
	return &result, nil
}

// do sends one API call. Transport failures and non-JSON bodies are retried
// with linear backoff; application errors in a JSON body are returned as is.
func (c *Client) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= config.APIMaxAttempts; attempt++ {
		body, err := c.send(ctx, method, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == config.APIMaxAttempts {
			break
		}

		backoff := config.APIRetryBaseDelay * time.Duration(attempt)
		log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("rep4rep request failed, retrying")
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{}
	for k, v := range params {
		values[k] = v
	}
	values.Set("apiToken", c.token)

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+values.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.External(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.External(serviceName, fmt.Errorf("read body: %w", err))
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("rep4rep response")

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		log.Error().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("rep4rep returned non-JSON body")
		return nil, apperrors.MalformedResponse(string(body))
	}
	return body, nil
}

type apiError struct {
	Error string `json:"error"`
}

// checkAPIError translates an error envelope into an AppError.
func checkAPIError(body []byte) error {
	if len(body) == 0 || body[0] != '{' {
		return nil
	}
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return nil
	}
	if isAlreadyRegistered(e.Error) {
		return apperrors.AlreadyExists("steam profile").WithCause(fmt.Errorf("%s", e.Error))
	}
	return apperrors.External(serviceName, fmt.Errorf("%s", e.Error))
}

func isAlreadyRegistered(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "already added") || strings.Contains(msg, "already exists")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
