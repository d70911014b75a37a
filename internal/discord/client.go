package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"discordcal/internal/ics"
	appLog "discordcal/internal/log"
	"discordcal/internal/model"
)

const (
	// DefaultBaseURL is the v10 REST endpoint.
	DefaultBaseURL = "https://discord.com/api/v10"

	// HeaderRetryAfter carries the 429 back-off in seconds.
	HeaderRetryAfter = "Retry-After"

	kindGuild   = "guild"
	kindChannel = "channel"

	// maxBodyBytes bounds how much of a response we are willing to decode.
	maxBodyBytes = 8 << 20
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL string
	Token   string

	// MaxRetries is the total number of attempts per request.
	MaxRetries int
	// RetryDelay is used when a 429 response carries no retry hint.
	RetryDelay time.Duration
	// RequestsPerSecond throttles outgoing requests. Zero disables it.
	RequestsPerSecond float64

	HTTPClient *http.Client
	Cache      NameCache
}

// Client is a minimal Discord REST client for guild scheduled events.
type Client struct {
	baseURL    string
	token      string
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	limiter    *rate.Limiter
	cache      NameCache

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		http:       opts.HTTPClient,
		cache:      opts.Cache,
		sleep:      sleepCtx,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// GuildName returns the guild's display name, consulting the cache first.
func (c *Client) GuildName(ctx context.Context, guildID string) (string, error) {
	if name, ok := c.cache.Get(kindGuild, guildID); ok {
		return name, nil
	}
	var g Guild
	if err := c.get(ctx, "/guilds/"+guildID, &g); err != nil {
		return "", err
	}
	c.cache.Set(kindGuild, guildID, g.Name)
	appLog.Info("fetched guild name", "id", guildID, "name", g.Name)
	return g.Name, nil
}

// ChannelName returns the channel's display name, consulting the cache first.
func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	if name, ok := c.cache.Get(kindChannel, channelID); ok {
		return name, nil
	}
	var ch Channel
	if err := c.get(ctx, "/channels/"+channelID, &ch); err != nil {
		return "", err
	}
	c.cache.Set(kindChannel, channelID, ch.Name)
	appLog.Info("fetched channel name", "id", channelID, "name", ch.Name)
	return ch.Name, nil
}

// ScheduledEvents lists the guild's scheduled events in API order.
func (c *Client) ScheduledEvents(ctx context.Context, guildID string) ([]ScheduledEvent, error) {
	var events []ScheduledEvent
	if err := c.get(ctx, "/guilds/"+guildID+"/scheduled-events?with_user_count=false", &events); err != nil {
		return nil, err
	}
	appLog.Info("fetched scheduled events", "guild", guildID, "count", len(events))
	return events, nil
}

// Events fetches scheduled events and converts them to model events.
// Events whose timestamps cannot be parsed are logged and dropped.
func (c *Client) Events(ctx context.Context, guildID string) ([]model.Event, error) {
	raw, err := c.ScheduledEvents(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(raw))
	for _, se := range raw {
		ev, err := se.ToModel()
		if err != nil {
			appLog.Error("dropping malformed scheduled event", err, "id", se.ID)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// ResolveChannels looks up the names of every channel referenced by events.
// A failed lookup is logged and recorded as ics.UnknownChannel so the feed
// still renders.
func (c *Client) ResolveChannels(ctx context.Context, events []model.Event) map[string]string {
	names := make(map[string]string)
	for _, id := range uniqueChannelIDs(events) {
		name, err := c.ChannelName(ctx, id)
		if err != nil {
			appLog.Error("channel lookup failed", err, "channel", id)
			name = ics.UnknownChannel
		}
		names[id] = name
	}
	return names
}

func uniqueChannelIDs(events []model.Event) []string {
	seen := make(map[string]struct{}, len(events))
	var ids []string
	for _, ev := range events {
		if ev.ChannelID == "" {
			continue
		}
		if _, ok := seen[ev.ChannelID]; ok {
			continue
		}
		seen[ev.ChannelID] = struct{}{}
		ids = append(ids, ev.ChannelID)
	}
	return ids
}

// get performs a GET with rate limiting and 429 retries, decoding the JSON
// body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := c.do(ctx, path, out)
		if err == nil {
			return nil
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return err
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}

		appLog.Warn("discord rate limited, retrying", "path", path, "retry_after", rl.RetryAfter, "attempt", attempt)
		if err := c.sleep(ctx, rl.RetryAfter); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func (c *Client) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	appLog.Debug("discord request", "method", req.Method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return c.rateLimitError(path, resp.Header, body)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		apiErr := &APIError{Method: req.Method, Path: path, StatusCode: resp.StatusCode}
		var payload struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// rateLimitError prefers the Retry-After header, then the JSON retry_after
// field, then the configured delay.
func (c *Client) rateLimitError(path string, h http.Header, body []byte) *RateLimitError {
	rl := &RateLimitError{Path: path, RetryAfter: c.retryDelay}

	var payload struct {
		RetryAfter float64 `json:"retry_after"`
		Global     bool    `json:"global"`
	}
	hasBody := json.Unmarshal(body, &payload) == nil
	if hasBody {
		rl.Global = payload.Global
	}

	if v := h.Get(HeaderRetryAfter); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			rl.RetryAfter = seconds(secs)
			return rl
		}
	}
	if hasBody && payload.RetryAfter > 0 {
		rl.RetryAfter = seconds(payload.RetryAfter)
	}
	return rl
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
