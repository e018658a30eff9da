package textutil

import "strings"

// QuoteCSV wraps value in double quotes, doubling any embedded quotes.
func QuoteCSV(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// CSVLine joins quoted values with commas.
func CSVLine(values ...string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = QuoteCSV(v)
	}
	return strings.Join(quoted, ",")
}
