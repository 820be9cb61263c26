// Package output converts raw interleaved process output into clean,
// UI-consumable lines. Everything here is pure: no state, no I/O.
package output

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// boxDrawing matches the border characters dev-server banners are drawn
// with; a line made only of these (plus spaces) carries no information.
func isBoxDrawingLine(line string) bool {
	seen := false
	for _, r := range line {
		if r == ' ' {
			continue
		}
		if r < 0x2500 || r > 0x257F {
			return false
		}
		seen = true
	}
	return seen
}

// bannerPrefixes are framework banner echoes the UI already renders in
// its own form (the resolved preview URL), so they are dropped.
var bannerPrefixes = []string{
	"Local:",
	"Network:",
	"➜ Local:",
	"➜ Network:",
	"- Local:",
	"- Network:",
}

func isBannerLine(line string) bool {
	for _, p := range bannerPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	if strings.Contains(line, "Serving!") {
		return true
	}
	// Box-bordered banner content like "│  Serving at ...  │".
	if strings.HasPrefix(line, "│") && strings.HasSuffix(line, "│") {
		return true
	}
	return isBoxDrawingLine(line)
}

// stripControl removes non-printable control characters that survive
// ANSI stripping (raw CR is handled by line normalization first).
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// CleanLines turns a raw chunk of process output into substantive
// trimmed lines in their original relative order. Applying it to its
// own output is a no-op.
func CleanLines(raw string) []string {
	s := ansi.Strip(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = stripControl(s)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isBannerLine(line) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Clean is CleanLines joined back into a single newline-separated string.
func Clean(raw string) string {
	return strings.Join(CleanLines(raw), "\n")
}
