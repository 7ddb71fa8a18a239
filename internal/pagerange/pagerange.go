// Package pagerange parses user-supplied page expressions like "1-3,5".
package pagerange

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"zetaconvert/internal/convert"
)

// Selection is a set of zero-based page indices in ascending order. A nil
// Selection means "all pages"; an empty non-nil Selection means no pages
// (the result of a degenerate expression like "5-2").
type Selection []int

// Parse reads a comma-separated list of 1-based pages and ranges. Parsing is
// permissive: malformed tokens and non-positive numbers are dropped rather
// than rejected. An empty or all-whitespace expression selects all pages.
func Parse(expr string) Selection {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	seen := make(map[int]struct{})
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(token, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil || a < 1 || b < 1 {
				continue
			}
			for p := a; p <= b; p++ {
				seen[p-1] = struct{}{}
			}
			continue
		}
		p, err := strconv.Atoi(token)
		if err != nil || p < 1 {
			continue
		}
		seen[p-1] = struct{}{}
	}

	sel := make(Selection, 0, len(seen))
	for p := range seen {
		sel = append(sel, p)
	}
	sort.Ints(sel)
	return sel
}

// All reports whether the selection means every page.
func (s Selection) All() bool { return s == nil }

// Resolve returns the concrete page indices for a document with pageCount
// pages. Indices beyond the document are an error, not silently clamped.
func (s Selection) Resolve(pageCount int) ([]int, error) {
	if s == nil {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i
		}
		return pages, nil
	}
	for _, p := range s {
		if p >= pageCount {
			return nil, fmt.Errorf("%w: page %d of %d", convert.ErrInvalidPageRange, p+1, pageCount)
		}
	}
	return []int(s), nil
}
