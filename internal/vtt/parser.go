// Package vtt parses WebVTT transcripts into an ordered cue sequence, plus
// the two local extensions podcast transcripts carry: a leading NOTE block
// of episode metadata, and <v Speaker> voice spans within cue text. No
// teacher file parses a text protocol with a state machine directly; the
// forward-scanning, line-at-a-time style here follows the cleaning pass in
// engine/scraper/transcript.go, adapted from a single regex substitution
// into a proper multi-state scan.
package vtt

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Metadata is the episode-identifying information recovered from a leading
// NOTE block, either as `key: value` lines or a JSON object.
type Metadata struct {
	PodcastID     string
	Episode       string
	YouTubeURL    string
	PublishedDate string
}

// Cue is a single timed caption, in source order.
type Cue struct {
	Index     int
	StartSec  float64
	EndSec    float64
	Speaker   string // empty if no <v Name> tag present
	Text      string
}

// Warning reports a non-fatal anomaly found while scanning; parsing
// continues past it, per the failure semantics of the VTT contract.
type Warning struct {
	CueIndex int
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("cue %d: %s", w.CueIndex, w.Reason)
}

// ParseError is fatal: missing magic header, or zero cues produced.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "vtt: " + e.Reason }

const ReasonMissingMagic = "MISSING_MAGIC"
const ReasonNoCues = "NO_CUES_PRODUCED"

type scanState int

const (
	stateHeader scanState = iota
	stateNote
	stateCueHeader
	stateCueBody
	stateBlank
)

var timestampRe = regexp.MustCompile(`(?:(\d{2,}):)?(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(?:(\d{2,}):)?(\d{2}):(\d{2})\.(\d{3})`)
var voiceTagRe = regexp.MustCompile(`<v\s+([^>]+)>`)
var anyTagRe = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// Parse reads WebVTT from r and returns its episode metadata, ordered cues,
// and any non-fatal warnings. It returns a *ParseError for a missing magic
// header or when no cues were produced.
func Parse(r io.Reader) (Metadata, []Cue, []Warning, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return Metadata{}, nil, nil, &ParseError{Reason: ReasonMissingMagic}
	}
	firstLine := strings.TrimSpace(stripBOM(scanner.Text()))
	if !strings.HasPrefix(firstLine, "WEBVTT") {
		return Metadata{}, nil, nil, &ParseError{Reason: ReasonMissingMagic}
	}

	var (
		meta        Metadata
		cues        []Cue
		warnings    []Warning
		noteLines   []string
		state       = stateHeader
		cueIndex    = 0
		cueStart    float64
		cueEnd      float64
		cueTextLines []string
		lastEnd     float64
		haveLast    bool
		sawCueHeader bool
	)

	flushNote := func() {
		if len(noteLines) == 0 {
			return
		}
		m := parseNoteBlock(noteLines)
		if meta.PodcastID == "" {
			meta.PodcastID = m.PodcastID
		}
		if meta.Episode == "" {
			meta.Episode = m.Episode
		}
		if meta.YouTubeURL == "" {
			meta.YouTubeURL = m.YouTubeURL
		}
		if meta.PublishedDate == "" {
			meta.PublishedDate = m.PublishedDate
		}
		noteLines = nil
	}

	flushCue := func() {
		if !sawCueHeader {
			return
		}
		text := strings.Join(cueTextLines, "\n")
		speaker, cleanText := extractSpeaker(text)
		if cueEnd < cueStart {
			warnings = append(warnings, Warning{CueIndex: cueIndex, Reason: "end before start"})
		} else if haveLast && cueStart < lastEnd {
			warnings = append(warnings, Warning{CueIndex: cueIndex, Reason: "non-monotonic start time"})
		}
		cues = append(cues, Cue{
			Index:    cueIndex,
			StartSec: cueStart,
			EndSec:   cueEnd,
			Speaker:  speaker,
			Text:     cleanText,
		})
		lastEnd = cueEnd
		haveLast = true
		cueIndex++
		cueTextLines = nil
		sawCueHeader = false
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)

		switch state {
		case stateHeader:
			if trimmed == "" {
				state = stateBlank
				continue
			}
			if strings.HasPrefix(trimmed, "NOTE") {
				state = stateNote
				if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "NOTE")); rest != "" {
					noteLines = append(noteLines, rest)
				}
				continue
			}
			// Kind:/Language: header lines and similar are ignored.
			continue

		case stateBlank:
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "NOTE") {
				state = stateNote
				if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "NOTE")); rest != "" {
					noteLines = append(noteLines, rest)
				}
				continue
			}
			if m := timestampRe.FindStringSubmatch(trimmed); m != nil {
				flushNote()
				start, end, err := parseTimestampMatch(m)
				if err != nil {
					warnings = append(warnings, Warning{CueIndex: cueIndex, Reason: err.Error()})
				}
				cueStart, cueEnd = start, end
				sawCueHeader = true
				state = stateCueBody
				continue
			}
			// A bare cue identifier line (numeric or string); the timestamp
			// line follows next, still inside stateBlank.
			continue

		case stateNote:
			if trimmed == "" {
				flushNote()
				state = stateBlank
				continue
			}
			noteLines = append(noteLines, trimmed)
			continue

		case stateCueBody:
			if trimmed == "" {
				flushCue()
				state = stateBlank
				continue
			}
			cueTextLines = append(cueTextLines, line)
			continue
		}
	}
	// Flush whatever was in flight at EOF.
	if state == stateCueBody {
		flushCue()
	}
	flushNote()

	if err := scanner.Err(); err != nil {
		return meta, cues, warnings, fmt.Errorf("vtt: scan: %w", err)
	}
	if len(cues) == 0 {
		return meta, cues, warnings, &ParseError{Reason: ReasonNoCues}
	}
	return meta, cues, warnings, nil
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, string(rune(0xFEFF)))
}

// parseTimestampMatch converts a timestampRe submatch into seconds. Hours
// are optional in either side of the arrow.
func parseTimestampMatch(m []string) (float64, float64, error) {
	start, err := timeParts(m[1], m[2], m[3], m[4])
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable start time")
	}
	end, err := timeParts(m[5], m[6], m[7], m[8])
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable end time")
	}
	return start, end, nil
}

func timeParts(hours, minutes, seconds, millis string) (float64, error) {
	var h int
	var err error
	if hours != "" {
		h, err = strconv.Atoi(hours)
		if err != nil {
			return 0, err
		}
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return 0, err
	}
	s, err := strconv.Atoi(seconds)
	if err != nil {
		return 0, err
	}
	ms, err := strconv.Atoi(millis)
	if err != nil {
		return 0, err
	}
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000.0, nil
}

// extractSpeaker pulls the first <v Name> tag out of text, returning the
// speaker name and the text with all tags stripped. Subsequent voice tags
// in the same cue are kept as plain text with markup removed, per the
// "keep the first" rule.
func extractSpeaker(text string) (speaker, clean string) {
	if m := voiceTagRe.FindStringSubmatchIndex(text); m != nil {
		speaker = strings.TrimSpace(text[m[2]:m[3]])
	}
	clean = anyTagRe.ReplaceAllString(text, "")
	return speaker, strings.TrimSpace(clean)
}
