package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength bounds the length of a slug produced by Slugify.
const MaxSlugLength = 40

// slugSplitPattern matches runs of characters that cannot appear in a slug.
var slugSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts value to a lowercase ASCII slug of at most MaxSlugLength
// bytes. Diacritics are stripped so "Café" becomes "cafe". When nothing
// survives the fallback is returned unchanged. Hyphens are trimmed before
// truncation, so a cut that lands on a separator leaves a trailing '-' and
// the folder name shows a doubled hyphen ("...-lazy--12345678").
func Slugify(value, fallback string) string {
	folded := stripMarks(value)
	slug := slugSplitPattern.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
	}
	if slug == "" {
		return fallback
	}
	return slug
}

func stripMarks(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}
