package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeName lowercases and strips punctuation, producing the
// "canonical name" used as a merge key throughout the data model.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func hashHex(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EpisodeID is a stable hash over (podcastId, normalized(title), publishedDate).
func EpisodeID(podcastID, title, publishedDate string) string {
	return hashHex("episode", podcastID, NormalizeName(title), publishedDate)
}

// UnitID is a stable hash over (episodeId, startSec, endSec).
func UnitID(episodeID string, startSec, endSec float64) string {
	return hashHex("unit", episodeID, strconv.FormatFloat(startSec, 'f', 3, 64), strconv.FormatFloat(endSec, 'f', 3, 64))
}

// EntityID is a hash of canonicalName+type, scoped to a podcast DB by
// virtue of living in that podcast's own database.
func EntityID(canonicalName, entityType string) string {
	return hashHex("entity", canonicalName, strings.ToLower(entityType))
}

// QuoteID is a hash of (unitId, normalized(text)).
func QuoteID(unitID, text string) string {
	return hashHex("quote", unitID, NormalizeName(text))
}

// InsightID is a hash of (unitId, normalized(title)).
func InsightID(unitID, title string) string {
	return hashHex("insight", unitID, NormalizeName(title))
}

// RelationshipKey identifies an EntityRelationship by (src, dst, type),
// used to MERGE the edge rather than as a persisted node id.
func RelationshipKey(sourceEntityID, targetEntityID, relType string) string {
	return fmt.Sprintf("%s|%s|%s", sourceEntityID, targetEntityID, strings.ToUpper(relType))
}
