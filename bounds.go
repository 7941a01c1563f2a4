package main

import (
	"fmt"
	"regexp"
	"strconv"
)

// ========================================
// Bounds / Geometry
// ========================================

var boundsRe = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// Rect represents element bounds parsed from the Android "[x1,y1][x2,y2]" form.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// ParseBounds parses an Android bounds string "[x1,y1][x2,y2]" into a Rect.
func ParseBounds(bounds string) (Rect, error) {
	matches := boundsRe.FindStringSubmatch(bounds)
	if len(matches) != 5 {
		return Rect{}, fmt.Errorf("invalid bounds format: %q", bounds)
	}

	x1, _ := strconv.Atoi(matches[1])
	y1, _ := strconv.Atoi(matches[2])
	x2, _ := strconv.Atoi(matches[3])
	y2, _ := strconv.Atoi(matches[4])

	return Rect{Left: x1, Top: y1, Right: x2, Bottom: y2}, nil
}

// Center returns the center point of the rect.
func (r Rect) Center() (int, int) {
	return r.Left + (r.Right-r.Left)/2, r.Top + (r.Bottom-r.Top)/2
}

// Width returns the rect width.
func (r Rect) Width() int {
	return r.Right - r.Left
}

// Height returns the rect height.
func (r Rect) Height() int {
	return r.Bottom - r.Top
}

// Contains checks if point (x, y) is inside the rect.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

// String renders the rect back in the Android bounds form.
func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.Left, r.Top, r.Right, r.Bottom)
}
