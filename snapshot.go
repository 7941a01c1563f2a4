package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// ========================================
// Tree snapshot builder
// Walks the uiautomator dump into an immutable UIElement tree.
// A dump always yields a well-formed tree, even if degraded.
// ========================================

// xmlNode mirrors one <node> of the uiautomator dump.
type xmlNode struct {
	XMLName       xml.Name  `xml:"node"`
	Text          string    `xml:"text,attr"`
	ResourceID    string    `xml:"resource-id,attr"`
	Class         string    `xml:"class,attr"`
	Package       string    `xml:"package,attr"`
	ContentDesc   string    `xml:"content-desc,attr"`
	Checkable     string    `xml:"checkable,attr"`
	Checked       string    `xml:"checked,attr"`
	Clickable     string    `xml:"clickable,attr"`
	Enabled       string    `xml:"enabled,attr"`
	Focused       string    `xml:"focused,attr"`
	Scrollable    string    `xml:"scrollable,attr"`
	Bounds        string    `xml:"bounds,attr"`
	Nodes         []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

// errorElement is the placeholder for a node or tree that could not be
// converted. ClassName "error" marks it for the caller.
func errorElement(msg string) UIElement {
	return UIElement{
		ClassName: "error",
		Text:      msg,
		Children:  []UIElement{},
	}
}

// convertNode converts one dump node, degrading to a placeholder instead of
// failing the whole snapshot. Children are converted independently so a bad
// subtree cannot take out its siblings.
func convertNode(n *xmlNode) UIElement {
	bounds, err := ParseBounds(n.Bounds)
	if err != nil {
		return errorElement(fmt.Sprintf("node conversion failed: %v", err))
	}

	children := make([]UIElement, 0, len(n.Nodes))
	for i := range n.Nodes {
		children = append(children, convertNode(&n.Nodes[i]))
	}

	return UIElement{
		ResourceID:         n.ResourceID,
		Text:               n.Text,
		ClassName:          n.Class,
		ContentDescription: n.ContentDesc,
		Bounds:             bounds,
		Clickable:          n.Clickable == "true",
		Scrollable:         n.Scrollable == "true",
		Checkable:          n.Checkable == "true",
		Checked:            n.Checked == "true",
		Enabled:            n.Enabled == "true",
		Focused:            n.Focused == "true",
		Children:           children,
	}
}

// cleanDumpXML strips the noise adb wraps around the document and repairs the
// broken entity escaping uiautomator is known to emit.
func cleanDumpXML(content string) string {
	if idx := strings.Index(content, "<?xml"); idx != -1 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, ">"); idx != -1 && idx < len(content)-1 {
		content = content[:idx+1]
	}
	return content
}

// repairEntities re-escapes bare ampersands without double-escaping entities
// that were already valid. Go's regexp has no lookahead, so this is a safe
// replacement chain.
func repairEntities(content string) string {
	content = strings.ReplaceAll(content, "&", "&amp;")
	content = strings.ReplaceAll(content, "&amp;amp;", "&amp;")
	content = strings.ReplaceAll(content, "&amp;lt;", "&lt;")
	content = strings.ReplaceAll(content, "&amp;gt;", "&gt;")
	content = strings.ReplaceAll(content, "&amp;quot;", "&quot;")
	content = strings.ReplaceAll(content, "&amp;apos;", "&apos;")
	content = strings.ReplaceAll(content, "&amp;#", "&#")
	return content
}

// parseHierarchy turns raw dump XML into a UIElement tree. Multiple top-level
// windows are wrapped under a synthetic root so the tree always has one root.
func parseHierarchy(raw string) (*UIElement, error) {
	cleaned := cleanDumpXML(raw)

	var h xmlHierarchy
	if err := xml.Unmarshal([]byte(repairEntities(cleaned)), &h); err != nil {
		return nil, fmt.Errorf("failed to parse UI XML (length %d): %w", len(cleaned), err)
	}
	if len(h.Nodes) == 0 {
		return nil, fmt.Errorf("hierarchy contains no nodes")
	}

	if len(h.Nodes) == 1 {
		root := convertNode(&h.Nodes[0])
		return &root, nil
	}

	children := make([]UIElement, 0, len(h.Nodes))
	for i := range h.Nodes {
		children = append(children, convertNode(&h.Nodes[i]))
	}
	root := UIElement{
		ClassName: "android.view.View",
		Text:      "Root Container",
		Children:  children,
	}
	return &root, nil
}

// rawDump fetches dump XML with bounded retries, clearing stuck uiautomator
// processes between attempts. Caller must hold the device lock.
func (a *Automator) rawDump(ctx context.Context) (string, error) {
	var content string
	var err error

	for i := 0; i < a.dumpRetries; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if i > 0 {
			if killer, ok := a.driver.(interface{ KillUiautomator(context.Context) }); ok {
				killer.KillUiautomator(ctx)
			}
			time.Sleep(500 * time.Millisecond)
		}

		content, err = a.driver.DumpHierarchy(ctx)
		if err == nil && strings.Contains(content, "<?xml") {
			return content, nil
		}
		LogDebug("snapshot").Int("retry", i+1).Int("maxRetries", a.dumpRetries).Err(err).Msg("UI dump retry")
	}

	if err == nil {
		err = fmt.Errorf("dump produced no XML")
	}
	return "", fmt.Errorf("failed to dump UI after %d attempts: %w", a.dumpRetries, err)
}

// liveTree dumps and parses the current screen. Used by resolution; errors
// propagate so callers can map them to their own outcome.
func (a *Automator) liveTree(ctx context.Context) (*UIElement, error) {
	raw, err := a.rawDump(ctx)
	if err != nil {
		return nil, err
	}
	return parseHierarchy(raw)
}

// Snapshot produces a PageSource for the current screen. It never fails: a
// total dump failure degrades to a minimal single-node tree so the transport
// layer has no distinct error path.
func (a *Automator) Snapshot(ctx context.Context) *PageSource {
	defer a.lock()()

	src := &PageSource{Timestamp: time.Now().UnixMilli()}

	root, err := a.liveTree(ctx)
	if err != nil {
		LogWarn("snapshot").Err(err).Msg("Snapshot degraded to placeholder tree")
		placeholder := errorElement(fmt.Sprintf("snapshot failed: %v", err))
		src.Root = &placeholder
		return src
	}
	src.Root = root

	// Metadata failures degrade silently; the tree is the payload
	if size, err := a.driver.ScreenSize(ctx); err == nil {
		src.ScreenSize = size
	}
	if pkg, activity, err := a.driver.ForegroundApp(ctx); err == nil {
		src.PackageName = pkg
		src.Activity = activity
	}

	return src
}

// SnapshotXML returns the cleaned raw dump document for /ui/dump/xml. Like
// Snapshot it never fails; a total dump failure degrades to a minimal
// single-node document.
func (a *Automator) SnapshotXML(ctx context.Context) string {
	defer a.lock()()

	raw, err := a.rawDump(ctx)
	if err != nil {
		LogWarn("snapshot").Err(err).Msg("XML snapshot degraded to placeholder document")
		return fmt.Sprintf(`<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0"><node class="error" text=%q bounds="[0,0][0,0]"/></hierarchy>`,
			fmt.Sprintf("snapshot failed: %v", err))
	}
	return cleanDumpXML(raw)
}
