package catalog

import (
	"context"
	"strings"

	"uttervault/internal/services"
	"uttervault/internal/utterance"
)

// DefaultBatchSize is the number of rows fetched per pagination round.
const DefaultBatchSize = 100

// Repository is the read-side view of the utterance table.
type Repository interface {
	// FetchByIDs returns the rows whose id is in ids, in no particular order.
	// Unknown ids are dropped silently.
	FetchByIDs(ctx context.Context, ids []string) ([]utterance.RawRecord, error)
	// FetchByFilter returns every row matching f, newest first.
	FetchByFilter(ctx context.Context, f Filter) ([]utterance.RawRecord, error)
	// Page returns one window of rows matching f plus the total match count.
	Page(ctx context.Context, f Filter, offset, limit int) (Page, error)
}

// Filter narrows the utterance table. Language matches as a case-insensitive
// substring of the language tag; blank means no filter.
type Filter struct {
	Language string
}

// Normalized returns the filter with surrounding whitespace removed.
func (f Filter) Normalized() Filter {
	return Filter{Language: strings.TrimSpace(f.Language)}
}

// IsEmpty reports whether the filter matches every row.
func (f Filter) IsEmpty() bool {
	return f.Normalized().Language == ""
}

// Page is one window of the filtered table.
type Page struct {
	Records []utterance.RawRecord
	Total   int
	Offset  int
	Limit   int
}

// FetchFunc fetches up to limit rows starting at offset.
type FetchFunc func(ctx context.Context, offset, limit int) ([]utterance.RawRecord, error)

// Paginate calls fetch with increasing offsets until a round returns fewer
// than batchSize rows. Rounds run sequentially and the first error aborts.
func Paginate(ctx context.Context, batchSize int, fetch FetchFunc) ([]utterance.RawRecord, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var all []utterance.RawRecord
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := fetch(ctx, offset, batchSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < batchSize {
			return all, nil
		}
	}
}

// likePattern builds a substring pattern with LIKE wildcards in value escaped.
func likePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
	return "%" + escaped + "%"
}

func wrapQueryError(operation string, err error) error {
	return services.Wrap(services.ErrExternalTool, "catalog", operation, "query utterances", err)
}
