package main

import (
	"context"
	"strings"
)

// ========================================
// Selector resolution
// Translates an ElementSelector into a conjunctive predicate and resolves it
// against a fresh dump of the live surface, never a cached snapshot.
// ========================================

// selectorPredicate builds the conjunctive match: every specified field must
// match, unspecified fields impose no constraint. text_contains is a
// substring check; everything else is exact. index is positional and applied
// by FindElement, not here.
func selectorPredicate(sel *ElementSelector) func(*UIElement) bool {
	var wantBounds *Rect
	if sel.Bounds != "" {
		if r, err := ParseBounds(sel.Bounds); err == nil {
			wantBounds = &r
		}
	}

	return func(el *UIElement) bool {
		if sel.ResourceID != "" && el.ResourceID != sel.ResourceID {
			return false
		}
		if sel.Text != "" && el.Text != sel.Text {
			return false
		}
		if sel.TextContains != "" && !strings.Contains(el.Text, sel.TextContains) {
			return false
		}
		if sel.ClassName != "" && el.ClassName != sel.ClassName {
			return false
		}
		if sel.ContentDescription != "" && el.ContentDescription != sel.ContentDescription {
			return false
		}
		if sel.Bounds != "" {
			if wantBounds == nil || el.Bounds != *wantBounds {
				return false
			}
		}
		return true
	}
}

// collectMatches walks the tree depth-first (preorder, sibling order as
// reported by the platform) and returns matching nodes in traversal order.
func collectMatches(el *UIElement, pred func(*UIElement) bool) []*UIElement {
	if el == nil {
		return nil
	}

	var results []*UIElement
	if pred(el) {
		results = append(results, el)
	}
	for i := range el.Children {
		results = append(results, collectMatches(&el.Children[i], pred)...)
	}
	return results
}

// FindElement resolves a selector against a snapshot tree, returning the
// match at the selector's index (first match when unset) or nil.
func FindElement(root *UIElement, sel *ElementSelector) *UIElement {
	if root == nil || !sel.IsValid() {
		return nil
	}

	matches := collectMatches(root, selectorPredicate(sel))

	idx := 0
	if sel.Index != nil {
		idx = *sel.Index
	}
	if idx < 0 || idx >= len(matches) {
		return nil
	}
	return matches[idx]
}

// resolve dumps the live surface and resolves the selector against it.
// (nil, nil) means the selector was well-formed but nothing matched. The
// caller must hold the device lock and must have validated the selector;
// resolution itself never retries.
func (a *Automator) resolve(ctx context.Context, sel *ElementSelector) (*UIElement, error) {
	root, err := a.liveTree(ctx)
	if err != nil {
		return nil, err
	}
	return FindElement(root, sel), nil
}
