package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestParseHierarchySingleRoot(t *testing.T) {
	root := mustParseTree(t, sampleDump)

	if root.ClassName != "android.widget.FrameLayout" {
		t.Errorf("root class = %q, want FrameLayout", root.ClassName)
	}
	if len(root.Children) != 3 {
		t.Fatalf("root children = %d, want 3", len(root.Children))
	}

	login := root.Children[0]
	if !login.Clickable || login.Text != "Login" {
		t.Errorf("login node not converted: %+v", login)
	}
	if login.Bounds != (Rect{100, 200, 500, 300}) {
		t.Errorf("login bounds = %+v", login.Bounds)
	}

	list := root.Children[2]
	if !list.Scrollable || len(list.Children) != 2 {
		t.Errorf("list node not converted: scrollable=%v children=%d", list.Scrollable, len(list.Children))
	}
}

func TestParseHierarchyMultiWindow(t *testing.T) {
	raw := `<?xml version='1.0'?>
<hierarchy rotation="0">
  <node text="A" class="android.widget.FrameLayout" bounds="[0,0][1080,2300]"/>
  <node text="B" class="android.widget.FrameLayout" bounds="[0,2300][1080,2400]"/>
</hierarchy>`

	root, err := parseHierarchy(raw)
	if err != nil {
		t.Fatalf("parseHierarchy failed: %v", err)
	}
	if root.ClassName != "android.view.View" || root.Text != "Root Container" {
		t.Errorf("expected synthetic root, got class=%q text=%q", root.ClassName, root.Text)
	}
	if len(root.Children) != 2 {
		t.Fatalf("synthetic root children = %d, want 2", len(root.Children))
	}
	if root.Children[0].Text != "A" || root.Children[1].Text != "B" {
		t.Errorf("window order not preserved: %q, %q", root.Children[0].Text, root.Children[1].Text)
	}
}

func TestParseHierarchyErrors(t *testing.T) {
	if _, err := parseHierarchy("not xml at all"); err == nil {
		t.Error("expected error for garbage input")
	}
	if _, err := parseHierarchy(`<?xml version='1.0'?><hierarchy rotation="0"></hierarchy>`); err == nil {
		t.Error("expected error for empty hierarchy")
	}
}

func TestConvertNodeBadBounds(t *testing.T) {
	raw := `<?xml version='1.0'?>
<hierarchy rotation="0">
  <node text="ok" class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node text="broken" class="android.widget.TextView" bounds="garbage"/>
    <node text="fine" class="android.widget.TextView" bounds="[0,100][100,200]"/>
  </node>
</hierarchy>`

	root, err := parseHierarchy(raw)
	if err != nil {
		t.Fatalf("parseHierarchy failed: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children))
	}

	// The broken node degrades to a placeholder, its sibling is untouched
	if root.Children[0].ClassName != "error" {
		t.Errorf("expected placeholder class for bad bounds, got %q", root.Children[0].ClassName)
	}
	if root.Children[1].Text != "fine" {
		t.Errorf("sibling lost: %+v", root.Children[1])
	}
}

func TestCleanDumpXML(t *testing.T) {
	raw := "UI hierchary dumped to: /data/local/tmp/view.xml\n<?xml version='1.0'?><hierarchy></hierarchy>\ntrailing junk"
	cleaned := cleanDumpXML(raw)
	if !strings.HasPrefix(cleaned, "<?xml") {
		t.Errorf("prefix noise not stripped: %q", cleaned[:20])
	}
	if !strings.HasSuffix(cleaned, ">") {
		t.Errorf("trailing noise not stripped: %q", cleaned)
	}
}

func TestRepairEntities(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Tom & Jerry", "Tom &amp; Jerry"},
		{"already &amp; escaped", "already &amp; escaped"},
		{"&lt;tag&gt;", "&lt;tag&gt;"},
		{"&quot;q&quot; &apos;a&apos;", "&quot;q&quot; &apos;a&apos;"},
		{"&#27979;", "&#27979;"},
		{"mixed & &amp; &#65;", "mixed &amp; &amp; &#65;"},
	}

	for _, tt := range tests {
		if got := repairEntities(tt.input); got != tt.want {
			t.Errorf("repairEntities(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseHierarchyRepairsBareAmpersand(t *testing.T) {
	raw := `<?xml version='1.0'?>
<hierarchy rotation="0">
  <node text="Cut & Paste" class="android.widget.TextView" bounds="[0,0][100,100]"/>
</hierarchy>`

	root, err := parseHierarchy(raw)
	if err != nil {
		t.Fatalf("parseHierarchy failed on bare ampersand: %v", err)
	}
	if root.Text != "Cut & Paste" {
		t.Errorf("text = %q, want %q", root.Text, "Cut & Paste")
	}
}

func TestRawDumpRetries(t *testing.T) {
	f := newFakeDriver("")
	f.dumpQueue = []string{"", "", sampleDump} // two failures then success
	a := newTestAutomator(f)

	out, err := a.rawDump(context.Background())
	if err != nil {
		t.Fatalf("rawDump failed despite eventual success: %v", err)
	}
	if !strings.Contains(out, "<?xml") {
		t.Error("rawDump returned non-XML content")
	}
	if f.dumpCalls != 3 {
		t.Errorf("dump calls = %d, want 3", f.dumpCalls)
	}
}

func TestRawDumpExhaustsRetries(t *testing.T) {
	f := newFakeDriver("")
	f.dumpErr = fmt.Errorf("device offline")
	a := newTestAutomator(f)

	if _, err := a.rawDump(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if f.dumpCalls != a.dumpRetries {
		t.Errorf("dump calls = %d, want %d", f.dumpCalls, a.dumpRetries)
	}
}

func TestSnapshotMetadata(t *testing.T) {
	f := newFakeDriver(sampleDump)
	f.fgPkg = "com.example.app"
	f.fgActivity = "com.example.app.MainActivity"
	a := newTestAutomator(f)

	src := a.Snapshot(context.Background())
	if src.Root == nil || src.Root.ClassName == "error" {
		t.Fatalf("snapshot degraded unexpectedly: %+v", src.Root)
	}
	if src.PackageName != "com.example.app" || src.Activity != "com.example.app.MainActivity" {
		t.Errorf("metadata not populated: %q %q", src.PackageName, src.Activity)
	}
	if src.ScreenSize != (ScreenSize{Width: 1080, Height: 2400}) {
		t.Errorf("screen size = %+v", src.ScreenSize)
	}
	if src.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestSnapshotNeverFails(t *testing.T) {
	f := newFakeDriver("")
	f.dumpErr = fmt.Errorf("uiautomator crashed")
	a := newTestAutomator(f)

	src := a.Snapshot(context.Background())
	if src == nil || src.Root == nil {
		t.Fatal("snapshot must always return a tree")
	}
	if src.Root.ClassName != "error" {
		t.Errorf("placeholder class = %q, want error", src.Root.ClassName)
	}
}

func TestSnapshotMetadataFailuresDegradeSilently(t *testing.T) {
	f := newFakeDriver(sampleDump)
	f.screenErr = fmt.Errorf("wm unavailable")
	f.fgErr = fmt.Errorf("dumpsys unavailable")
	a := newTestAutomator(f)

	src := a.Snapshot(context.Background())
	if src.Root == nil || src.Root.ClassName == "error" {
		t.Fatal("tree must survive metadata failures")
	}
	if src.PackageName != "" || src.ScreenSize.Width != 0 {
		t.Errorf("expected zero metadata, got %+v", src)
	}
}

func TestSnapshotXML(t *testing.T) {
	f := newFakeDriver("noise before\n" + sampleDump)
	a := newTestAutomator(f)

	out := a.SnapshotXML(context.Background())
	if !strings.HasPrefix(out, "<?xml") {
		t.Errorf("XML snapshot not cleaned: %q", out[:30])
	}
	if !strings.Contains(out, `resource-id="com.example.app:id/login"`) {
		t.Error("XML snapshot lost content")
	}
}

func TestSnapshotXMLNeverFails(t *testing.T) {
	f := newFakeDriver("")
	f.dumpErr = fmt.Errorf("uiautomator crashed")
	a := newTestAutomator(f)

	out := a.SnapshotXML(context.Background())
	if !strings.Contains(out, `class="error"`) {
		t.Errorf("expected placeholder document, got %q", out)
	}
	if _, err := parseHierarchy(out); err != nil {
		t.Errorf("placeholder document must itself parse: %v", err)
	}
}
