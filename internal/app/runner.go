// Package app wires the Discord client, the calendar builder and the output
// sink into a single refresh cycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"discordcal/internal/ics"
	appLog "discordcal/internal/log"
	"discordcal/internal/model"
	"discordcal/internal/output"
)

// UnknownServer is the calendar name used when the guild lookup fails.
const UnknownServer = "Unknown Server"

// EventSource is the subset of the Discord client a run needs.
type EventSource interface {
	GuildName(ctx context.Context, guildID string) (string, error)
	Events(ctx context.Context, guildID string) ([]model.Event, error)
	ResolveChannels(ctx context.Context, events []model.Event) map[string]string
}

// Options configures a Runner.
type Options struct {
	GuildID string
	Source  EventSource
	Builder *ics.Builder
	Writer  *output.Writer

	// PublicDir, if set, is copied next to the written feed.
	PublicDir string

	// Now defaults to time.Now.
	Now func() time.Time
}

// RunResult summarises one generation cycle.
type RunResult struct {
	GuildName string            `json:"guild_name"`
	Events    int               `json:"events"`
	Entries   int               `json:"entries"`
	Skipped   []*ics.EventError `json:"-"`
	Path      string            `json:"path,omitempty"`
	// Rules maps each recurring event's ID to its RFC 5545 RRULE.
	Rules map[string]string `json:"rules,omitempty"`
	// Document is the generated feed. Empty when there were no events.
	Document string `json:"-"`
}

// Status is the outcome of the most recent run, as shown by the web API.
type Status struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Result     RunResult `json:"result"`
	Skipped    []string  `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Runner executes generation cycles. It is safe for concurrent use.
type Runner struct {
	opts Options

	// runMu serialises cycles so two writers never race on the feed.
	runMu sync.Mutex

	mu   sync.RWMutex
	last *Status
}

// NewRunner validates opts and returns a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.GuildID == "" {
		return nil, errors.New("guild id is empty")
	}
	if opts.Source == nil {
		return nil, errors.New("event source is nil")
	}
	if opts.Builder == nil {
		return nil, errors.New("builder is nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// Generate fetches events and builds the document without writing it.
func (r *Runner) Generate(ctx context.Context) (RunResult, error) {
	guildName, err := r.opts.Source.GuildName(ctx, r.opts.GuildID)
	if err != nil {
		if ctx.Err() != nil {
			return RunResult{}, ctx.Err()
		}
		appLog.Error("guild lookup failed, using placeholder name", err, "guild", r.opts.GuildID)
		guildName = UnknownServer
	}
	res := RunResult{GuildName: guildName}

	events, err := r.opts.Source.Events(ctx, r.opts.GuildID)
	if err != nil {
		return res, fmt.Errorf("fetch scheduled events: %w", err)
	}
	res.Events = len(events)
	if len(events) == 0 {
		appLog.Info("no scheduled events found", "guild", r.opts.GuildID)
		return res, nil
	}

	for _, ev := range events {
		if ev.Recurrence == nil {
			continue
		}
		if res.Rules == nil {
			res.Rules = make(map[string]string)
		}
		res.Rules[ev.ID] = ics.RuleString(*ev.Recurrence)
	}

	channels := r.opts.Source.ResolveChannels(ctx, events)

	built, err := r.opts.Builder.Build(ics.BuildInput{
		Events:    events,
		GuildID:   r.opts.GuildID,
		GuildName: guildName,
		Channels:  channels,
		Now:       r.opts.Now(),
	})
	if err != nil {
		return res, err
	}
	res.Entries = built.Entries
	res.Skipped = built.Skipped

	sum, err := ics.Verify(built.Document)
	if err != nil {
		return res, err
	}
	if len(sum.DuplicateUIDs) > 0 {
		appLog.Warn("duplicate UIDs in generated calendar", "uids", sum.DuplicateUIDs)
	}
	res.Document = built.Document
	return res, nil
}

// RunOnce performs a full cycle: generate, write, copy public assets.
// When the guild has no events nothing is written.
func (r *Runner) RunOnce(ctx context.Context) (RunResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	status := Status{StartedAt: r.opts.Now()}
	res, err := r.runOnce(ctx)
	status.FinishedAt = r.opts.Now()
	status.Result = res
	for _, s := range res.Skipped {
		status.Skipped = append(status.Skipped, s.Error())
	}
	if err != nil {
		status.Error = err.Error()
	}
	r.mu.Lock()
	r.last = &status
	r.mu.Unlock()

	if err != nil {
		return res, err
	}
	appLog.Info("calendar refresh complete",
		"guild", res.GuildName,
		"events", res.Events,
		"entries", res.Entries,
		"skipped", len(res.Skipped),
		"path", res.Path,
		"took", status.FinishedAt.Sub(status.StartedAt),
	)
	return res, nil
}

func (r *Runner) runOnce(ctx context.Context) (RunResult, error) {
	res, err := r.Generate(ctx)
	if err != nil || res.Document == "" {
		return res, err
	}
	if r.opts.Writer == nil {
		return res, errors.New("output writer is nil")
	}
	if err := r.opts.Writer.Write(res.Document); err != nil {
		return res, fmt.Errorf("write calendar: %w", err)
	}
	res.Path = r.opts.Writer.Path

	if err := output.CopyPublicAssets(r.opts.PublicDir, filepath.Dir(res.Path)); err != nil {
		return res, err
	}
	return res, nil
}

// LastStatus returns the most recent RunOnce outcome, if any.
func (r *Runner) LastStatus() (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Status{}, false
	}
	return *r.last, true
}

// FeedPath is where RunOnce writes the document.
func (r *Runner) FeedPath() string {
	if r.opts.Writer == nil {
		return ""
	}
	return r.opts.Writer.Path
}
