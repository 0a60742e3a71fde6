// Package wait polls a terminal transcript until new output matches a
// pattern or stops changing.
package wait

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

const DefaultPollInterval = 50 * time.Millisecond

// ReadFunc returns the output produced since the start position together
// with the current absolute transcript position.
type ReadFunc func() (output string, position int64, err error)

type Config struct {
	Pattern       string
	SettleMs      int
	Timeout       time.Duration
	StartPosition int64
	PollInterval  time.Duration
}

func ForOutput(ctx context.Context, readFn ReadFunc, cfg Config) (string, int64, error) {
	var re *regexp.Regexp
	if cfg.Pattern != "" {
		var err error
		re, err = regexp.Compile(cfg.Pattern)
		if err != nil {
			return "", 0, fmt.Errorf("invalid pattern: %w", err)
		}
	}
	if re == nil && cfg.SettleMs <= 0 {
		return "", 0, fmt.Errorf("a pattern or a settle time is required")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	settleDuration := time.Duration(cfg.SettleMs) * time.Millisecond

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastPos := cfg.StartPosition
	lastChangeTime := time.Now()

	for {
		output, pos, err := readFn()
		if err != nil {
			return "", 0, err
		}

		if pos != lastPos {
			lastPos = pos
			lastChangeTime = time.Now()
		}

		if re != nil && re.MatchString(output) {
			return output, pos, nil
		}
		if cfg.SettleMs > 0 && pos > cfg.StartPosition && time.Since(lastChangeTime) >= settleDuration {
			return output, pos, nil
		}

		select {
		case <-ctx.Done():
			if re != nil {
				return output, pos, fmt.Errorf("timeout waiting for pattern %q", cfg.Pattern)
			}
			return output, pos, fmt.Errorf("timeout waiting for output to settle")
		case <-ticker.C:
		}
	}
}
