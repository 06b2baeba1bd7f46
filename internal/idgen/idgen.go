// Package idgen allocates human-readable, sortable document numbers such as
// EO-20250601-0001 from a per-kind, per-day counter table.
package idgen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/repo"
)

// ErrAllocationFailed is returned when no free number was found within MaxAttempts.
var ErrAllocationFailed = errors.New("could not allocate document number")

type Config struct {
	Prefixes    map[string]string
	Width       int
	MaxAttempts int
}

// ConfigFrom builds the generator config from the engine config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.Default()
	}
	return Config{
		Prefixes:    cfg.OrderNumbers.Prefixes,
		Width:       cfg.OrderNumbers.Width,
		MaxAttempts: cfg.OrderNumbers.MaxAttempts,
	}
}

type Generator struct {
	Repo   repo.Repo
	Config Config
	Now    func() time.Time
	// Taken reports whether a candidate number is already used.
	Taken func(ctx context.Context, tx *sql.Tx, candidate string) (bool, error)
}

func New(r repo.Repo, cfg Config) *Generator {
	return &Generator{
		Repo:   r,
		Config: cfg,
		Now:    time.Now,
		Taken:  r.OrderNoExistsTx,
	}
}

// Generate allocates the next number for kind inside tx.
func (g *Generator) Generate(ctx context.Context, tx *sql.Tx, kind string) (string, error) {
	prefix, ok := g.Config.Prefixes[kind]
	if !ok || prefix == "" {
		prefix = strings.ToUpper(kind)
	}
	width := g.Config.Width
	if width <= 0 {
		width = 4
	}
	attempts := g.Config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	period := now().UTC().Format("20060102")
	for i := 0; i < attempts; i++ {
		seq, err := g.Repo.NextSequence(ctx, tx, kind, period)
		if err != nil {
			return "", fmt.Errorf("next sequence for %s: %w", kind, err)
		}
		candidate := Format(prefix, period, seq, width)
		if g.Taken == nil {
			return candidate, nil
		}
		taken, err := g.Taken(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: kind %s after %d attempts", ErrAllocationFailed, kind, attempts)
}

// Format renders PREFIX-PERIOD-SEQ with SEQ zero padded to width.
func Format(prefix, period string, seq int64, width int) string {
	return fmt.Sprintf("%s-%s-%0*d", prefix, period, width, seq)
}
