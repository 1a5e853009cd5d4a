// Package decider tells whether a chat message deserves an image reply.
package decider

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sync/atomic"
	"time"
)

// DefaultPattern matches the usual ways to mention the New Year flat
// ("хата на НГ") in Russian chats.
const DefaultPattern = `(?i)(?:^|[^\p{L}\p{N}_])(?:нг|хата|нов(?:ый|ым|ому) год(?:ом|у)?)(?:$|[^\p{L}\p{N}_])`

type Config struct {
	Pattern string
	// Month limits replies to one month of the year; 0 means any month.
	Month int
	// MinProbability is the lowest reply chance in percent.
	MinProbability int
}

type Decider struct {
	pattern        *regexp.Regexp
	month          time.Month
	minProbability int

	counter atomic.Uint32
	now     func() time.Time
	roll    func() float64
}

type Option func(*Decider)

func WithClock(now func() time.Time) Option {
	return func(d *Decider) {
		d.now = now
	}
}

// WithRoll replaces the random source; roll must return a value in [0, 1).
func WithRoll(roll func() float64) Option {
	return func(d *Decider) {
		d.roll = roll
	}
}

func New(cfg Config, opts ...Option) (*Decider, error) {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("decider: invalid pattern: %w", err)
	}

	if cfg.Month < 0 || cfg.Month > 12 {
		return nil, fmt.Errorf("decider: month %d is out of range", cfg.Month)
	}

	if cfg.MinProbability < 0 || cfg.MinProbability > 100 {
		return nil, fmt.Errorf("decider: probability %d is out of range", cfg.MinProbability)
	}

	d := &Decider{
		pattern:        re,
		month:          time.Month(cfg.Month),
		minProbability: cfg.MinProbability,
		now:            time.Now,
		roll:           rand.Float64,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// ShouldRespond reports whether text gets an image. Matching messages are
// answered with a chance that grows by ten percent per match, wrapping at a
// hundred, and never drops below the configured minimum.
func (d *Decider) ShouldRespond(text string) bool {
	if d.month != 0 && d.now().Month() != d.month {
		slog.Debug("decider: Message didn't pass preconditions", "reason", "month")
		return false
	}

	if !d.pattern.MatchString(text) {
		slog.Debug("decider: Message didn't pass preconditions", "reason", "pattern")
		return false
	}

	matched := d.counter.Add(1) - 1
	probability := max(int(matched%10)*10, d.minProbability)

	slog.Info("decider: Deciding with probability", "probability", probability)

	return d.roll()*100 < float64(probability)
}
