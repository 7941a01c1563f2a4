package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeDriver is an in-memory DeviceDriver. Every gesture and key event is
// recorded as a command string so tests can assert exact device traffic.
type fakeDriver struct {
	mu sync.Mutex

	dumpXML   string
	dumpErr   error
	dumpQueue []string // when non-empty, consumed one per DumpHierarchy call
	dumpCalls int

	screen    ScreenSize
	screenErr error

	fgPkg      string
	fgActivity string
	fgErr      error

	props    map[string]string
	propsErr error

	tapErr   error
	swipeErr error
	keyErr   error
	inputErr error

	commands  []string
	stayAwake []bool
}

func newFakeDriver(dumpXML string) *fakeDriver {
	return &fakeDriver{
		dumpXML: dumpXML,
		screen:  ScreenSize{Width: 1080, Height: 2400},
	}
}

func (f *fakeDriver) record(format string, args ...any) {
	f.mu.Lock()
	f.commands = append(f.commands, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakeDriver) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeDriver) DumpHierarchy(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.dumpCalls++
	if len(f.dumpQueue) > 0 {
		next := f.dumpQueue[0]
		f.dumpQueue = f.dumpQueue[1:]
		f.mu.Unlock()
		if next == "" {
			return "", fmt.Errorf("dump failed")
		}
		return next, nil
	}
	f.mu.Unlock()
	if f.dumpErr != nil {
		return "", f.dumpErr
	}
	return f.dumpXML, nil
}

func (f *fakeDriver) Tap(ctx context.Context, x, y int) error {
	f.record("tap %d %d", x, y)
	return f.tapErr
}

func (f *fakeDriver) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	f.record("swipe %d %d %d %d %d", x1, y1, x2, y2, durationMs)
	return f.swipeErr
}

func (f *fakeDriver) PressKey(ctx context.Context, keycode int) error {
	f.record("keyevent %d", keycode)
	return f.keyErr
}

func (f *fakeDriver) LongPressKey(ctx context.Context, keycode int) error {
	f.record("keyevent --longpress %d", keycode)
	return f.keyErr
}

func (f *fakeDriver) InputText(ctx context.Context, text string) error {
	f.record("text %s", text)
	return f.inputErr
}

func (f *fakeDriver) ScreenSize(ctx context.Context) (ScreenSize, error) {
	if f.screenErr != nil {
		return ScreenSize{}, f.screenErr
	}
	return f.screen, nil
}

func (f *fakeDriver) ForegroundApp(ctx context.Context) (string, string, error) {
	if f.fgErr != nil {
		return "", "", f.fgErr
	}
	return f.fgPkg, f.fgActivity, nil
}

func (f *fakeDriver) Props(ctx context.Context) (map[string]string, error) {
	if f.propsErr != nil {
		return nil, f.propsErr
	}
	return f.props, nil
}

func (f *fakeDriver) StayAwake(ctx context.Context, on bool) error {
	f.mu.Lock()
	f.stayAwake = append(f.stayAwake, on)
	f.mu.Unlock()
	return nil
}

// sampleDump is a representative two-level screen: a button, an edit field and
// a scrollable list with two rows.
const sampleDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node text="" resource-id="" class="android.widget.FrameLayout" package="com.example.app" content-desc="" checkable="false" checked="false" clickable="false" enabled="true" focused="false" scrollable="false" bounds="[0,0][1080,2400]">
    <node text="Login" resource-id="com.example.app:id/login" class="android.widget.Button" package="com.example.app" content-desc="Login button" checkable="false" checked="false" clickable="true" enabled="true" focused="false" scrollable="false" bounds="[100,200][500,300]"/>
    <node text="" resource-id="com.example.app:id/username" class="android.widget.EditText" package="com.example.app" content-desc="Username field" checkable="false" checked="false" clickable="true" enabled="true" focused="false" scrollable="false" bounds="[100,400][980,500]"/>
    <node text="" resource-id="com.example.app:id/list" class="androidx.recyclerview.widget.RecyclerView" package="com.example.app" content-desc="" checkable="false" checked="false" clickable="false" enabled="true" focused="false" scrollable="true" bounds="[0,600][1080,2200]">
      <node text="Item one" resource-id="com.example.app:id/row" class="android.widget.TextView" package="com.example.app" content-desc="" checkable="false" checked="false" clickable="true" enabled="true" focused="false" scrollable="false" bounds="[0,600][1080,800]"/>
      <node text="Item two" resource-id="com.example.app:id/row" class="android.widget.TextView" package="com.example.app" content-desc="" checkable="false" checked="false" clickable="true" enabled="true" focused="false" scrollable="false" bounds="[0,800][1080,1000]"/>
    </node>
  </node>
</hierarchy>`

// emptyDump has a root but none of the sample elements.
const emptyDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node text="" resource-id="" class="android.widget.FrameLayout" package="com.example.app" content-desc="" checkable="false" checked="false" clickable="false" enabled="true" focused="false" scrollable="false" bounds="[0,0][1080,2400]"/>
</hierarchy>`

// newTestAutomator wires an Automator around a fake with fast polling.
func newTestAutomator(f *fakeDriver) *Automator {
	a := NewAutomator(f, nil)
	a.pollInterval = 5 * time.Millisecond
	return a
}
