package panel

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// strategy is one way of performing an action against the page. Actions that
// matter get an ordered list of these: try A, then B, then C, first success
// wins, all failures accumulate. The alternatives share one timeout budget
// rather than each getting its own.
type strategy struct {
	name string
	fn   func(ctx context.Context) error
}

func tryStrategies(ctx context.Context, budget time.Duration, action string, strategies []strategy) error {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var failures []string
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: budget exhausted: %v", s.name, err))
			break
		}
		if err := s.fn(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: all strategies failed: %s", action, strings.Join(failures, "; "))
}
