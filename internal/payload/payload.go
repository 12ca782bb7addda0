// Package payload encodes movie deep-link parameters into the opaque start parameter
// carried by Telegram bot links and decodes them back.
package payload

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Delimiter separates the movie code, part number and token inside a payload.
	Delimiter = "|"
	// DefaultPart is used whenever a payload does not carry a usable part number.
	DefaultPart = 1

	linkBase = "https://t.me/"
)

// Encode joins the movie code, part and token and applies unpadded URL-safe base64.
func Encode(movieCode string, part int, token string) string {
	raw := movieCode + Delimiter + strconv.Itoa(part) + Delimiter + token
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode reverses Encode. It never fails: malformed input yields ("", DefaultPart, "").
func Decode(payload string) (string, int, string) {
	trimmed := strings.TrimRight(strings.TrimSpace(payload), "=")
	if trimmed == "" {
		return "", DefaultPart, ""
	}

	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil || !utf8.Valid(decoded) {
		return "", DefaultPart, ""
	}

	text := string(decoded)
	if !strings.Contains(text, Delimiter) {
		return "", DefaultPart, ""
	}

	segments := strings.Split(text, Delimiter)
	movieCode := strings.TrimSpace(segments[0])
	part := DefaultPart
	if len(segments) > 1 {
		part = parsePart(segments[1])
	}
	token := ""
	if len(segments) > 2 {
		token = strings.TrimSpace(segments[2])
	}
	return movieCode, part, token
}

func parsePart(segment string) int {
	if segment == "" {
		return DefaultPart
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return DefaultPart
		}
	}
	value, err := strconv.Atoi(segment)
	if err != nil || value < 1 {
		return DefaultPart
	}
	return value
}

// Link builds the public deep link for the bot handle and payload.
func Link(botUsername, payload string) string {
	handle := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	return fmt.Sprintf("%s%s?start=%s", linkBase, handle, url.QueryEscape(payload))
}
