package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/gabe/botpool/internal/models"
)

// NavigateExecutor opens a page in the slot's browser and waits for a
// selector. It checks that the session and its proxy can reach the target
// without joining anything, and counts as an amateur participation.
type NavigateExecutor struct {
	URL      string
	Selector string
	Timeout  time.Duration
}

// Run performs one attempt
func (n NavigateExecutor) Run(ctx context.Context, sc SlotContext) models.Outcome {
	if sc.Browser == nil {
		return models.Outcome{Err: errors.New("slot has no browser session")}
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(n.URL)}
	if n.Selector != "" {
		actions = append(actions, chromedp.WaitVisible(n.Selector, chromedp.ByQuery))
	}

	if err := sc.Browser.Run(ctx, actions...); err != nil {
		return models.Outcome{Err: fmt.Errorf("navigate %s: %w", n.URL, err)}
	}
	return models.Outcome{Success: true, Category: models.CategoryAmateur}
}
