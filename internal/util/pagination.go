package util

import (
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Calculate turns a 1-based page and a page size into an offset and limit.
// Out of range values fall back to the first page and DefaultPageSize.
func Calculate(page, size int) (from, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	from = (page - 1) * size
	return from, size
}

// ParsePage reads the page and size query parameters. Empty values take the
// defaults; anything else must be a positive integer.
func ParsePage(pageStr, sizeStr string) (page, size int, ok bool) {
	page, ok = parsePositive(pageStr, 1)
	if !ok {
		return 0, 0, false
	}
	size, ok = parsePositive(sizeStr, DefaultPageSize)
	if !ok {
		return 0, 0, false
	}
	return page, size, true
}

func parsePositive(s string, def int) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
