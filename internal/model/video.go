package model

import (
	"net/url"
	"strings"
)

// Fixed video slot identifiers.
const (
	SlotPresentation = "presentation"
	SlotHistory      = "history"
)

// VideoSlots lists the slots in display order.
var VideoSlots = []string{SlotPresentation, SlotHistory}

// VideoSlot is one embedded video. URL is stored exactly as the operator
// typed it; EmbedURL normalises it at render time.
type VideoSlot struct {
	Title string `json:"title" yaml:"title" validate:"required"`
	URL   string `json:"url"   yaml:"url"   validate:"required"`
}

// Videos always holds exactly the two fixed slots.
type Videos struct {
	Presentation VideoSlot `json:"presentation" yaml:"presentation"`
	History      VideoSlot `json:"history"      yaml:"history"`
}

// Slot returns the slot stored under key.
func (v Videos) Slot(key string) (VideoSlot, bool) {
	switch key {
	case SlotPresentation:
		return v.Presentation, true
	case SlotHistory:
		return v.History, true
	}
	return VideoSlot{}, false
}

// WithSlot returns a copy of v with key replaced. ok is false for an
// unknown key, in which case v is returned unchanged.
func (v Videos) WithSlot(key string, slot VideoSlot) (out Videos, ok bool) {
	out = v
	switch key {
	case SlotPresentation:
		out.Presentation = slot
	case SlotHistory:
		out.History = slot
	default:
		return v, false
	}
	return out, true
}

const youtubeEmbedBase = "https://www.youtube.com/embed/"

// EmbedURL turns a YouTube watch page, short link or shorts link into its
// embeddable form. Anything else, including URLs that are already
// embeddable, is returned unchanged. An empty string stays empty.
//
//	https://www.youtube.com/watch?v=abc123 -> https://www.youtube.com/embed/abc123
//	https://youtu.be/abc123               -> https://www.youtube.com/embed/abc123
func EmbedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		}
	}

	// Only a bare video id is accepted; "a/b" would point somewhere else.
	if id == "" || strings.Contains(id, "/") {
		return raw
	}
	return youtubeEmbedBase + url.PathEscape(id)
}
