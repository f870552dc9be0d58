package compositor

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"stylebff/internal/imaging"
)

var coverKeyPattern = regexp.MustCompile(`^covers/([A-Za-z0-9_-]+)/cover-(\d+)\.(png|jpg)$`)

// CoverKey names the composed cover of entityID created at at.
func CoverKey(entityID string, at time.Time, f imaging.Format) string {
	return fmt.Sprintf("covers/%s/cover-%d.%s", segment(entityID), at.UnixMilli(), f.Ext())
}

// IsCoverKey reports whether key was produced by CoverKey for entityID. Only
// such keys are ever deleted when a cover is replaced.
func IsCoverKey(entityID, key string) bool {
	m := coverKeyPattern.FindStringSubmatch(key)
	return m != nil && m[1] == segment(entityID)
}

// ReferenceKeys names the labeled and clean reference canvases.
func ReferenceKeys(ownerID string, at time.Time, f imaging.Format) (labeled, clean string) {
	base := fmt.Sprintf("references/%s/%d", segment(ownerID), at.UnixMilli())
	return base + "-labeled." + f.Ext(), base + "-clean." + f.Ext()
}

// segment reduces s to a single safe path segment.
func segment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "anonymous"
	}
	return b.String()
}
