package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ========================================
// Wait evaluator
// Bounded poll loop re-resolving a selector until a condition holds or the
// timeout elapses. The device lock is taken per poll step, never across the
// sleep, so long waits do not starve concurrent requests.
// ========================================

const (
	WaitVisible   = "visible"
	WaitGone      = "gone"
	WaitClickable = "clickable"
)

// Wait blocks the calling request until the condition holds for the selector
// or timeoutMs elapses. timeoutMs <= 0 means exactly one immediate check with
// no polling delay.
//
// "gone" holds whenever resolution returns no match; there is no initial
// presence check, so a selector that never matched succeeds on the first poll.
func (a *Automator) Wait(ctx context.Context, sel *ElementSelector, condition string, timeoutMs int) ActionResult {
	if !sel.IsValid() {
		return failResult(ErrCodeInvalidSelector, "selector has no criteria", false)
	}

	condition = strings.ToLower(strings.TrimSpace(condition))
	switch condition {
	case WaitVisible, WaitGone, WaitClickable:
	default:
		// Unknown condition: fail without touching the device
		return failResult(ErrCodeOperationFailed, fmt.Sprintf("unknown wait condition %q", condition), false)
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		satisfied, found := a.checkCondition(ctx, sel, condition)
		if satisfied {
			res := okResult(fmt.Sprintf("condition %q satisfied", condition))
			res.ElementFound = found
			return res
		}

		if a.pollLogLimiter.Allow() {
			LogDebug("wait").Str("condition", condition).Msg("Condition not yet satisfied")
		}

		remaining := time.Until(deadline)
		if timeoutMs <= 0 || remaining <= 0 {
			return failResult(ErrCodeTimeout,
				fmt.Sprintf("condition %q not satisfied within %dms", condition, timeoutMs), found)
		}

		sleep := a.pollInterval
		if remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return failResult(ErrCodeOperationFailed, "wait cancelled", found)
		case <-time.After(sleep):
		}
	}
}

// checkCondition takes the device lock for one resolution attempt. A dump
// failure counts as "no match", consistent with the resolver's semantics.
func (a *Automator) checkCondition(ctx context.Context, sel *ElementSelector, condition string) (satisfied, found bool) {
	defer a.lock()()

	el, err := a.resolve(ctx, sel)
	if err != nil {
		LogDebug("wait").Err(err).Msg("Resolution failed during wait poll")
		el = nil
	}
	found = el != nil

	switch condition {
	case WaitVisible:
		return found, found
	case WaitGone:
		return !found, found
	case WaitClickable:
		return found && el.Clickable, found
	}
	return false, found
}
