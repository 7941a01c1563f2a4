package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ========================================
// Action executor
// Synthetic interactions against a resolved element or the whole screen.
// Lower-level failures become OPERATION_FAILED with the cause attached; no
// operation retries.
// ========================================

// Click resolves the selector and taps the center of its visible bounds.
func (a *Automator) Click(ctx context.Context, sel *ElementSelector) ActionResult {
	if !sel.IsValid() {
		return failResult(ErrCodeInvalidSelector, "selector has no criteria", false)
	}

	defer a.lock()()

	el, err := a.resolve(ctx, sel)
	if err != nil {
		// Resolution errors degrade to a miss on the action paths
		LogDebug("actions").Err(err).Msg("Resolution failed during click")
		return failResult(ErrCodeElementNotFound, "element not found", false)
	}
	if el == nil {
		return failResult(ErrCodeElementNotFound, "element not found", false)
	}

	x, y := el.Bounds.Center()
	if err := a.driver.Tap(ctx, x, y); err != nil {
		return failResult(ErrCodeOperationFailed, fmt.Sprintf("tap failed: %v", err), true)
	}

	return okResult(fmt.Sprintf("clicked element at (%d, %d)", x, y))
}

// Input resolves the selector, taps it for focus, optionally clears existing
// content, then types text.
func (a *Automator) Input(ctx context.Context, sel *ElementSelector, text string, clearFirst bool) ActionResult {
	if !sel.IsValid() {
		return failResult(ErrCodeInvalidSelector, "selector has no criteria", false)
	}

	defer a.lock()()

	el, err := a.resolve(ctx, sel)
	if err != nil {
		LogDebug("actions").Err(err).Msg("Resolution failed during input")
		return failResult(ErrCodeElementNotFound, "element not found", false)
	}
	if el == nil {
		return failResult(ErrCodeElementNotFound, "element not found", false)
	}

	// Tap to focus the field before any key events
	x, y := el.Bounds.Center()
	if err := a.driver.Tap(ctx, x, y); err != nil {
		return failResult(ErrCodeOperationFailed, fmt.Sprintf("focus tap failed: %v", err), true)
	}
	time.Sleep(300 * time.Millisecond)

	if clearFirst {
		// Long-press A selects all in the focused field, DEL removes it
		if err := a.driver.LongPressKey(ctx, KeycodeSelectAll); err != nil {
			return failResult(ErrCodeOperationFailed, fmt.Sprintf("clear failed: %v", err), true)
		}
		if err := a.driver.PressKey(ctx, KeycodeDel); err != nil {
			return failResult(ErrCodeOperationFailed, fmt.Sprintf("clear failed: %v", err), true)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err := a.driver.InputText(ctx, text); err != nil {
		return failResult(ErrCodeOperationFailed, fmt.Sprintf("text input failed: %v", err), true)
	}

	return okResult(fmt.Sprintf("input %d characters", len(text)))
}

func validDirection(direction string) bool {
	switch strings.ToLower(direction) {
	case "up", "down", "left", "right":
		return true
	}
	return false
}

// Scroll performs a container-relative swipe when a selector is given, or a
// full-screen swipe otherwise. Direction is validated before any resolution
// or device access.
func (a *Automator) Scroll(ctx context.Context, direction string, steps int, sel *ElementSelector) ActionResult {
	if !validDirection(direction) {
		return failResult(ErrCodeInvalidDirection, fmt.Sprintf("invalid scroll direction %q", direction), false)
	}
	direction = strings.ToLower(direction)
	if steps <= 0 {
		steps = 1
	}

	if sel != nil {
		if !sel.IsValid() {
			return failResult(ErrCodeInvalidSelector, "selector has no criteria", false)
		}

		defer a.lock()()

		el, err := a.resolve(ctx, sel)
		if err != nil {
			LogDebug("actions").Err(err).Msg("Resolution failed during scroll")
			return failResult(ErrCodeElementNotFound, "element not found", false)
		}
		if el == nil {
			return failResult(ErrCodeElementNotFound, "element not found", false)
		}

		if err := a.scrollElement(ctx, el, direction, steps); err != nil {
			return failResult(ErrCodeOperationFailed, fmt.Sprintf("scroll failed: %v", err), true)
		}
		return okResult(fmt.Sprintf("scrolled element %s", direction))
	}

	defer a.lock()()

	if err := a.scrollScreen(ctx, direction, steps); err != nil {
		return failResult(ErrCodeOperationFailed, fmt.Sprintf("scroll failed: %v", err), false)
	}
	return okResult(fmt.Sprintf("scrolled screen %s", direction))
}

// scrollElement swipes from the element center toward the direction, the
// distance growing with steps but clamped inside the element bounds.
func (a *Automator) scrollElement(ctx context.Context, el *UIElement, direction string, steps int) error {
	x, y := el.Bounds.Center()
	x2, y2 := x, y

	clampDist := func(dim int) int {
		dist := dim / 3 * steps
		if max := dim/2 - 8; dist > max {
			dist = max
		}
		if dist < 1 {
			dist = 1
		}
		return dist
	}

	switch direction {
	case "down":
		y2 = y - clampDist(el.Bounds.Height())
	case "up":
		y2 = y + clampDist(el.Bounds.Height())
	case "right":
		x2 = x - clampDist(el.Bounds.Width())
	case "left":
		x2 = x + clampDist(el.Bounds.Width())
	}

	return a.driver.Swipe(ctx, x, y, x2, y2, 300)
}

// scrollScreen swipes between the quarter and two-thirds lines of the screen,
// one fixed-duration gesture per step. Direction names where the viewport
// moves: "down" reveals content below (finger travels up).
func (a *Automator) scrollScreen(ctx context.Context, direction string, steps int) error {
	size, err := a.driver.ScreenSize(ctx)
	if err != nil {
		return fmt.Errorf("screen size unavailable: %w", err)
	}

	w, h := size.Width, size.Height
	var x1, y1, x2, y2 int

	switch direction {
	case "down":
		x1, y1 = w/2, h*2/3
		x2, y2 = w/2, h/4
	case "up":
		x1, y1 = w/2, h/4
		x2, y2 = w/2, h*2/3
	case "right":
		x1, y1 = w*2/3, h/2
		x2, y2 = w/4, h/2
	case "left":
		x1, y1 = w/4, h/2
		x2, y2 = w*2/3, h/2
	}

	for i := 0; i < steps; i++ {
		if err := a.driver.Swipe(ctx, x1, y1, x2, y2, 300); err != nil {
			return err
		}
	}
	return nil
}

// PressBack dispatches KEYCODE_BACK.
func (a *Automator) PressBack(ctx context.Context) ActionResult {
	return a.pressKey(ctx, KeycodeBack, "back")
}

// PressHome dispatches KEYCODE_HOME.
func (a *Automator) PressHome(ctx context.Context) ActionResult {
	return a.pressKey(ctx, KeycodeHome, "home")
}

// PressRecent dispatches KEYCODE_APP_SWITCH.
func (a *Automator) PressRecent(ctx context.Context) ActionResult {
	return a.pressKey(ctx, KeycodeRecent, "recent")
}

func (a *Automator) pressKey(ctx context.Context, keycode int, name string) ActionResult {
	defer a.lock()()

	if err := a.driver.PressKey(ctx, keycode); err != nil {
		return failResult(ErrCodeOperationFailed, fmt.Sprintf("key press %s failed: %v", name, err), false)
	}
	res := okResult(fmt.Sprintf("pressed %s", name))
	res.ElementFound = false // no element involved in hardware keys
	return res
}

// DeviceInfo queries static device descriptors. Read-only, side-effect free.
func (a *Automator) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	defer a.lock()()

	var info DeviceInfo

	props, err := a.driver.Props(ctx)
	if err != nil {
		return info, fmt.Errorf("getprop failed: %w", err)
	}

	info.Manufacturer = props["ro.product.manufacturer"]
	info.Model = props["ro.product.model"]
	info.Brand = props["ro.product.brand"]
	info.AndroidVersion = props["ro.build.version.release"]
	info.SDK = props["ro.build.version.sdk"]
	info.Serial = props["ro.serialno"]
	info.Density = props["ro.sf.lcd_density"]

	if size, err := a.driver.ScreenSize(ctx); err == nil {
		info.ScreenSize = size
	}

	return info, nil
}
