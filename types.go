package main

import "time"

// ========================================
// Wire types shared by the automation engine and the HTTP surface.
// All JSON fields are snake_case to match the orchestration client.
// ========================================

// Error codes returned in ActionResult.ErrorCode. Closed set; handlers never
// invent codes outside of it.
const (
	ErrCodeElementNotFound  = "ELEMENT_NOT_FOUND"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeInvalidSelector  = "INVALID_SELECTOR"
	ErrCodeOperationFailed  = "OPERATION_FAILED"
	ErrCodeInvalidDirection = "INVALID_DIRECTION"
	ErrCodeServiceError     = "SERVICE_ERROR"
)

// ElementSelector describes how to locate one UI element. Every field is
// optional but at least one must be set; see IsValid. Selectors are built
// per request and never persisted.
type ElementSelector struct {
	ResourceID         string `json:"resource_id,omitempty"`
	Text               string `json:"text,omitempty"`
	TextContains       string `json:"text_contains,omitempty"`
	ClassName          string `json:"class_name,omitempty"`
	ContentDescription string `json:"content_description,omitempty"`
	Index              *int   `json:"index,omitempty"`
	Bounds             string `json:"bounds,omitempty"`
}

// IsValid reports whether at least one criterion is set. An all-empty
// selector is rejected before any device access is attempted.
func (s *ElementSelector) IsValid() bool {
	if s == nil {
		return false
	}
	return s.ResourceID != "" ||
		s.Text != "" ||
		s.TextContains != "" ||
		s.ClassName != "" ||
		s.ContentDescription != "" ||
		s.Index != nil ||
		s.Bounds != ""
}

// UIElement is one immutable node of a UI tree snapshot. Children preserve
// the depth-first sibling order reported by uiautomator.
type UIElement struct {
	ResourceID         string      `json:"resource_id"`
	Text               string      `json:"text"`
	ClassName          string      `json:"class_name"`
	ContentDescription string      `json:"content_description"`
	Bounds             Rect        `json:"bounds"`
	Clickable          bool        `json:"clickable"`
	Scrollable         bool        `json:"scrollable"`
	Checkable          bool        `json:"checkable"`
	Checked            bool        `json:"checked"`
	Enabled            bool        `json:"enabled"`
	Focused            bool        `json:"focused"`
	Children           []UIElement `json:"children"`
}

// ScreenSize is the device display resolution in pixels.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageSource is one full snapshot of the UI tree plus screen metadata.
// It is a point-in-time copy; it becomes stale the instant the real UI changes.
type PageSource struct {
	Root        *UIElement `json:"root"`
	Timestamp   int64      `json:"timestamp"` // Unix milliseconds
	PackageName string     `json:"package_name"`
	Activity    string     `json:"activity"`
	ScreenSize  ScreenSize `json:"screen_size"`
}

// ActionResult is the uniform envelope for every mutating or query-adjacent
// operation. ElementFound=false with Success=false distinguishes a resolution
// miss from other failure classes.
type ActionResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ElementFound bool   `json:"element_found"`
	ErrorCode    string `json:"error_code,omitempty"`
	Timestamp    int64  `json:"timestamp"` // Unix milliseconds
}

func okResult(message string) ActionResult {
	return ActionResult{
		Success:      true,
		Message:      message,
		ElementFound: true,
		Timestamp:    time.Now().UnixMilli(),
	}
}

func failResult(code, message string, elementFound bool) ActionResult {
	return ActionResult{
		Success:      false,
		Message:      message,
		ElementFound: elementFound,
		ErrorCode:    code,
		Timestamp:    time.Now().UnixMilli(),
	}
}

// DeviceInfo contains static/queryable device descriptors.
type DeviceInfo struct {
	Manufacturer   string     `json:"manufacturer"`
	Model          string     `json:"model"`
	Brand          string     `json:"brand"`
	AndroidVersion string     `json:"android_version"`
	SDK            string     `json:"sdk"`
	Serial         string     `json:"serial"`
	ScreenSize     ScreenSize `json:"screen_size"`
	Density        string     `json:"density"`
}
