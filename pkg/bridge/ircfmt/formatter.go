// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ircfmt converts between IRC formatting codes and plain text or
// light markdown.
package ircfmt

import (
	"regexp"
	"strings"
)

// mIRC formatting control characters.
const (
	Bold          = '\x02'
	Color         = '\x03'
	HexColor      = '\x04'
	Reset         = '\x0f'
	Monospace     = '\x11'
	Reverse       = '\x16'
	Italic        = '\x1d'
	Strikethrough = '\x1e'
	Underline     = '\x1f'
)

// Strip removes all formatting codes, including color arguments, from text.
func Strip(text string) string {
	if !strings.ContainsAny(text, "\x02\x03\x04\x0f\x11\x16\x1d\x1e\x1f") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case Bold, Reset, Monospace, Reverse, Italic, Strikethrough, Underline:
		case Color:
			i = skipColor(text, i+1, isDigit, 2) - 1
		case HexColor:
			i = skipColor(text, i+1, isHexDigit, 6) - 1
		default:
			sb.WriteByte(text[i])
		}
	}
	return sb.String()
}

// skipColor skips a "fg[,bg]" color argument starting at i and returns the
// index of the first byte after it. A comma is only consumed when a
// background color follows it.
func skipColor(text string, i int, valid func(byte) bool, width int) int {
	i = skipRun(text, i, valid, width)
	if i < len(text)-1 && text[i] == ',' && valid(text[i+1]) {
		i = skipRun(text, i+1, valid, width)
	}
	return i
}

func skipRun(text string, i int, valid func(byte) bool, width int) int {
	for n := 0; n < width && i < len(text) && valid(text[i]); n++ {
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

var (
	codeRe   = regexp.MustCompile("`([^`]+)`")
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	strikeRe = regexp.MustCompile(`~~(.+?)~~`)
	italicRe = regexp.MustCompile(`(^|[^\w])_([^_\n]+)_([^\w]|$)`)
)

// FromMarkdown renders **bold**, _italic_, ~~strike~~ and `code` spans as
// IRC formatting. Code spans are copied verbatim; the other rules only
// apply to the text between them.
func FromMarkdown(text string) string {
	if !strings.ContainsAny(text, "*_~`") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	last := 0
	for _, loc := range codeRe.FindAllStringSubmatchIndex(text, -1) {
		sb.WriteString(inlineMarkdown(text[last:loc[0]]))
		sb.WriteByte(Monospace)
		sb.WriteString(text[loc[2]:loc[3]])
		sb.WriteByte(Monospace)
		last = loc[1]
	}
	sb.WriteString(inlineMarkdown(text[last:]))
	return sb.String()
}

func inlineMarkdown(text string) string {
	if text == "" {
		return text
	}
	text = boldRe.ReplaceAllString(text, "\x02$1\x02")
	text = strikeRe.ReplaceAllString(text, "\x1e$1\x1e")
	return italicRe.ReplaceAllString(text, "$1\x1d$2\x1d$3")
}
