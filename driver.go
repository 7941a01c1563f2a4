package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ========================================
// Device driver
// All access to the live device surface funnels through this interface.
// The production implementation shells out to adb; tests inject fakes.
// ========================================

// DeviceDriver is the low-level device surface: gestures, key events, text
// input, hierarchy dumps and device descriptors. Implementations do not
// retry; the layers above decide retry/poll semantics.
type DeviceDriver interface {
	// DumpHierarchy returns the raw uiautomator XML for the current screen.
	DumpHierarchy(ctx context.Context) (string, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error
	PressKey(ctx context.Context, keycode int) error
	LongPressKey(ctx context.Context, keycode int) error
	InputText(ctx context.Context, text string) error
	ScreenSize(ctx context.Context) (ScreenSize, error)
	// ForegroundApp returns the package and activity currently in focus.
	ForegroundApp(ctx context.Context) (pkg string, activity string, err error)
	Props(ctx context.Context) (map[string]string, error)
	// StayAwake toggles the device-side keep-awake signal tied to a running
	// session.
	StayAwake(ctx context.Context, on bool) error
}

// Android key codes used by the executor.
const (
	KeycodeBack      = 4
	KeycodeHome      = 3
	KeycodeRecent    = 187
	KeycodeDel       = 67
	KeycodeSelectAll = 29 // KEYCODE_A; long press selects all in a focused field
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// ValidateDeviceID rejects serials that could smuggle shell metacharacters.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return nil // empty means "the only connected device"
	}
	if len(deviceID) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	return nil
}

// ========================================
// adb implementation
// ========================================

// AdbDriver drives one Android device through the adb CLI.
type AdbDriver struct {
	adbPath  string
	deviceID string // empty targets the only connected device
}

// NewAdbDriver validates the serial and returns an adb-backed driver.
func NewAdbDriver(adbPath, deviceID string) (*AdbDriver, error) {
	if adbPath == "" {
		adbPath = "adb"
	}
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}
	return &AdbDriver{adbPath: adbPath, deviceID: deviceID}, nil
}

// run executes an adb command against the bound device and returns trimmed
// combined output.
func (d *AdbDriver) run(ctx context.Context, args ...string) (string, error) {
	full := make([]string, 0, len(args)+2)
	if d.deviceID != "" {
		full = append(full, "-s", d.deviceID)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, d.adbPath, full...)
	output, err := cmd.CombinedOutput()
	res := string(output)
	if err != nil {
		return res, fmt.Errorf("adb %s failed: %w, output: %s", strings.Join(args, " "), err, strings.TrimSpace(res))
	}
	return strings.TrimSpace(res), nil
}

func (d *AdbDriver) shell(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, append([]string{"shell"}, args...)...)
}

const dumpFile = "/data/local/tmp/view.xml"

// DumpHierarchy dumps and reads the hierarchy in one adb round trip. The dump
// can be flaky; retries (and uiautomator cleanup between them) live in the
// snapshot builder, not here.
func (d *AdbDriver) DumpHierarchy(ctx context.Context) (string, error) {
	// && ensures cat only runs if the dump succeeded
	out, err := d.shell(ctx, fmt.Sprintf("uiautomator dump %s && cat %s", dumpFile, dumpFile))
	if err != nil {
		return "", err
	}
	if !strings.Contains(out, "<?xml") {
		return "", fmt.Errorf("uiautomator dump produced no XML: %s", truncate(out, 120))
	}
	return out, nil
}

// KillUiautomator clears stuck uiautomator processes between dump retries.
func (d *AdbDriver) KillUiautomator(ctx context.Context) {
	d.shell(ctx, "pkill uiautomator")
}

func (d *AdbDriver) Tap(ctx context.Context, x, y int) error {
	_, err := d.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (d *AdbDriver) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	if durationMs <= 0 {
		durationMs = 300
	}
	_, err := d.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2), strconv.Itoa(durationMs))
	return err
}

func (d *AdbDriver) PressKey(ctx context.Context, keycode int) error {
	_, err := d.shell(ctx, "input", "keyevent", strconv.Itoa(keycode))
	return err
}

func (d *AdbDriver) LongPressKey(ctx context.Context, keycode int) error {
	_, err := d.shell(ctx, "input", "keyevent", "--longpress", strconv.Itoa(keycode))
	return err
}

// InputText is the unified text input entry point. ASCII text goes through
// native "input text" with shell escaping; anything else goes through the
// ADBKeyboard broadcast, restoring the previous IME afterwards.
func (d *AdbDriver) InputText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if containsNonASCII(text) {
		return d.inputTextViaKeyboard(ctx, text)
	}
	_, err := d.shell(ctx, fmt.Sprintf("input text %s", escapeForAdbInput(text)))
	return err
}

const adbKeyboardIME = "com.android.adbkeyboard/.AdbIME"

// inputTextViaKeyboard sends Unicode text through the ADBKeyboard IME. The
// keyboard is only active for the duration of the broadcast; the previous IME
// is restored so normal device usage is not disturbed.
func (d *AdbDriver) inputTextViaKeyboard(ctx context.Context, text string) error {
	previous, _ := d.shell(ctx, "settings", "get", "secure", "default_input_method")

	if _, err := d.shell(ctx, "ime", "set", adbKeyboardIME); err != nil {
		return fmt.Errorf("ADBKeyboard not available: %w", err)
	}
	// Give the IME switch a moment to land before broadcasting
	time.Sleep(300 * time.Millisecond)

	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	_, sendErr := d.shell(ctx, "am", "broadcast", "-a", "ADB_INPUT_B64", "--es", "msg", encoded)

	if previous != "" && previous != "null" && previous != adbKeyboardIME {
		d.shell(ctx, "ime", "set", previous)
	}
	return sendErr
}

var resolutionRe = regexp.MustCompile(`(\d+)x(\d+)`)

func (d *AdbDriver) ScreenSize(ctx context.Context) (ScreenSize, error) {
	out, err := d.shell(ctx, "wm", "size")
	if err != nil {
		return ScreenSize{}, err
	}
	// "Physical size: 1080x2400" or "Override size: 1080x2400"
	matches := resolutionRe.FindStringSubmatch(out)
	if len(matches) < 3 {
		return ScreenSize{}, fmt.Errorf("could not parse screen size from %q", truncate(out, 80))
	}
	w, _ := strconv.Atoi(matches[1])
	h, _ := strconv.Atoi(matches[2])
	return ScreenSize{Width: w, Height: h}, nil
}

var focusRe = regexp.MustCompile(`([A-Za-z0-9_.]+)/([A-Za-z0-9_.$]+)`)

// ForegroundApp parses the resumed activity out of dumpsys.
func (d *AdbDriver) ForegroundApp(ctx context.Context) (string, string, error) {
	out, err := d.shell(ctx, "dumpsys activity activities | grep -E 'mResumedActivity|mFocusedApp' | head -1")
	if err != nil {
		return "", "", err
	}
	matches := focusRe.FindStringSubmatch(out)
	if len(matches) < 3 {
		return "", "", fmt.Errorf("could not parse foreground app from %q", truncate(out, 80))
	}
	pkg, activity := matches[1], matches[2]
	if strings.HasPrefix(activity, ".") {
		activity = pkg + activity
	}
	return pkg, activity, nil
}

// Props returns the full getprop map.
func (d *AdbDriver) Props(ctx context.Context) (map[string]string, error) {
	out, err := d.shell(ctx, "getprop")
	if err != nil {
		return nil, err
	}

	props := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// "[ro.product.model]: [Pixel 7]"
		parts := strings.SplitN(line, "]: [", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimPrefix(parts[0], "[")
		val := strings.TrimSuffix(parts[1], "]")
		props[key] = val
	}
	return props, nil
}

func (d *AdbDriver) StayAwake(ctx context.Context, on bool) error {
	arg := "false"
	if on {
		arg = "true"
	}
	_, err := d.shell(ctx, "svc", "power", "stayon", arg)
	return err
}

// ========================================
// Input escaping helpers
// ========================================

func containsNonASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}

// escapeForAdbInput escapes a string for safe use with "adb shell input text".
// Only suitable for ASCII text.
func escapeForAdbInput(text string) string {
	// Backslash first, or the backslashes inserted below get doubled
	result := strings.ReplaceAll(text, "\\", "\\\\")

	// input text uses %s for spaces
	result = strings.ReplaceAll(result, " ", "%s")

	shellSpecials := []string{
		"'", "\"", "`", "$",
		"(", ")", "{", "}", "[", "]",
		"&", "|", ";", "<", ">",
		"#", "!", "~", "*", "?",
	}
	for _, ch := range shellSpecials {
		result = strings.ReplaceAll(result, ch, "\\"+ch)
	}

	return result
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
