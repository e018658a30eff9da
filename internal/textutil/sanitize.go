package textutil

import "strings"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. Leading dots are dropped so the result never names
// a hidden file or a parent directory.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	return strings.TrimLeft(name, ".")
}
