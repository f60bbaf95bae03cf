package vtt

import (
	"encoding/json"
	"strings"
)

// parseNoteBlock recovers episode Metadata from a NOTE block's lines, which
// are either a single JSON object or one `key: value` pair per line. Stray
// NOTE blocks that carry neither shape (free-text commentary) yield a zero
// Metadata and are otherwise ignored, per the "tolerate stray NOTE blocks"
// rule.
func parseNoteBlock(lines []string) Metadata {
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	if strings.HasPrefix(joined, "{") {
		var raw map[string]string
		if err := json.Unmarshal([]byte(joined), &raw); err == nil {
			return Metadata{
				PodcastID:     raw["podcast_id"],
				Episode:       raw["episode"],
				YouTubeURL:    raw["youtube_url"],
				PublishedDate: raw["published_date"],
			}
		}
	}

	var m Metadata
	for _, line := range lines {
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "podcast_id":
			m.PodcastID = value
		case "episode":
			m.Episode = value
		case "youtube_url":
			m.YouTubeURL = value
		case "published_date":
			m.PublishedDate = value
		}
	}
	return m
}

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
