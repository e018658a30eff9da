package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"uttervault/internal/archive"
	"uttervault/internal/catalog"
	"uttervault/internal/logging"
	"uttervault/internal/observe"
	"uttervault/internal/services"
	"uttervault/internal/utterance"
)

// Status describes how an export call ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusBusy      Status = "busy"
	StatusSkipped   Status = "skipped"
	StatusNoMatches Status = "no_matches"
	StatusFailed    Status = "failed"
)

const (
	ModeIDs    = "ids"
	ModeFilter = "filter"
)

const (
	NoRecordsMessage = "No data found for the requested utterances."
	NoMatchesMessage = "No utterances match the current filters."
	BusyMessage      = "Another export is already in progress."
	failurePrefix    = "Download failed: "
)

// ErrNoRecords is returned when none of the requested ids exist.
var ErrNoRecords = errors.New("no data found for the requested utterances")

// Archiver builds an archive from normalized records.
type Archiver interface {
	Assemble(ctx context.Context, records []utterance.Record) ([]byte, archive.Stats, error)
}

// Outcome reports the result of one export call.
type Outcome struct {
	Status   Status
	ExportID string
	FileName string
	Location string
	Size     int
	Stats    archive.Stats
	Message  string
}

// Options configures a Pipeline.
type Options struct {
	Repository catalog.Repository
	Archiver   Archiver
	Deliverer  Deliverer
	Logger     *slog.Logger
	Metrics    *observe.Metrics
	Now        func() time.Time
}

// Pipeline runs exports one at a time.
type Pipeline struct {
	repo      catalog.Repository
	archiver  Archiver
	deliverer Deliverer
	logger    *slog.Logger
	metrics   *observe.Metrics
	now       func() time.Time

	downloading atomic.Bool
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts Options) *Pipeline {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		repo:      opts.Repository,
		archiver:  opts.Archiver,
		deliverer: opts.Deliverer,
		logger:    logging.NewComponentLogger(opts.Logger, "export"),
		metrics:   opts.Metrics,
		now:       now,
	}
}

// Downloading reports whether an export is in flight.
func (p *Pipeline) Downloading() bool {
	return p.downloading.Load()
}

// ExportByIDs archives the records with ids, in the order given, and
// delivers the archive to the default Deliverer.
func (p *Pipeline) ExportByIDs(ctx context.Context, ids []string) (Outcome, error) {
	return p.ExportByIDsTo(ctx, ids, p.deliverer)
}

// ExportByFilter archives every record matching f and delivers the archive
// to the default Deliverer.
func (p *Pipeline) ExportByFilter(ctx context.Context, f catalog.Filter) (Outcome, error) {
	return p.ExportByFilterTo(ctx, f, p.deliverer)
}

// ExportByIDsTo is ExportByIDs with an explicit destination.
func (p *Pipeline) ExportByIDsTo(ctx context.Context, ids []string, d Deliverer) (Outcome, error) {
	if len(ids) == 0 {
		p.metrics.RecordExport(ctx, ModeIDs, string(StatusSkipped), 0, 0)
		return Outcome{Status: StatusSkipped}, nil
	}
	return p.run(ctx, ModeIDs, d, func(ctx context.Context) ([]utterance.Record, Outcome, bool, error) {
		raws, err := p.repo.FetchByIDs(ctx, ids)
		if err != nil {
			return nil, Outcome{}, false, err
		}
		records := orderByIDs(utterance.Normalize(raws), ids)
		if len(records) == 0 {
			return nil, Outcome{}, false, ErrNoRecords
		}
		return records, Outcome{}, true, nil
	})
}

// ExportByFilterTo is ExportByFilter with an explicit destination.
func (p *Pipeline) ExportByFilterTo(ctx context.Context, f catalog.Filter, d Deliverer) (Outcome, error) {
	f = f.Normalized()
	return p.run(ctx, ModeFilter, d, func(ctx context.Context) ([]utterance.Record, Outcome, bool, error) {
		raws, err := p.repo.FetchByFilter(ctx, f)
		if err != nil {
			return nil, Outcome{}, false, err
		}
		if len(raws) == 0 {
			return nil, Outcome{Status: StatusNoMatches, Message: NoMatchesMessage}, false, nil
		}
		return utterance.Normalize(raws), Outcome{}, true, nil
	})
}

// resolveFunc returns the records to archive, or an outcome that ends the
// export early when proceed is false and err is nil.
type resolveFunc func(ctx context.Context) (records []utterance.Record, early Outcome, proceed bool, err error)

func (p *Pipeline) run(ctx context.Context, mode string, d Deliverer, resolve resolveFunc) (Outcome, error) {
	if !p.downloading.CompareAndSwap(false, true) {
		p.logger.Info("export dropped, another export is in progress", logging.String(logging.FieldOperation, mode))
		p.metrics.RecordExport(ctx, mode, string(StatusBusy), 0, 0)
		return Outcome{Status: StatusBusy, Message: BusyMessage}, nil
	}
	defer p.downloading.Store(false)
	defer p.metrics.ExportStarted(ctx)()

	start := p.now()
	exportID := uuid.NewString()
	ctx = services.WithExportID(ctx, exportID)
	ctx = services.WithOperation(ctx, mode)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("export started")

	records, early, proceed, err := resolve(ctx)
	if err != nil {
		return p.fail(ctx, logger, mode, exportID, err)
	}
	if !proceed {
		early.ExportID = exportID
		logger.Info("export finished without archive", logging.String("status", string(early.Status)))
		p.metrics.RecordExport(ctx, mode, string(early.Status), 0, 0)
		return early, nil
	}

	data, stats, err := p.archiver.Assemble(ctx, records)
	if err != nil {
		if errors.Is(err, archive.ErrEmptyInput) {
			err = ErrNoRecords
		}
		return p.fail(ctx, logger, mode, exportID, err)
	}

	name := ArchiveName(p.now())
	if d == nil {
		return p.fail(ctx, logger, mode, exportID, services.Wrap(services.ErrConfiguration, "export", "deliver", "no destination configured", nil))
	}
	location, err := d.Deliver(ctx, name, data)
	if err != nil {
		return p.fail(ctx, logger, mode, exportID, fmt.Errorf("deliver archive: %w", err))
	}

	elapsed := p.now().Sub(start)
	logger.Info("export completed",
		logging.String("file", name),
		logging.String("location", location),
		logging.Int("records", stats.Records),
		logging.Int("missing_audio", stats.Missing+stats.Failed),
		logging.Duration("duration", elapsed),
	)
	p.metrics.RecordExport(ctx, mode, string(StatusCompleted), elapsed, stats.Records)
	return Outcome{
		Status:   StatusCompleted,
		ExportID: exportID,
		FileName: name,
		Location: location,
		Size:     len(data),
		Stats:    stats,
	}, nil
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, mode, exportID string, err error) (Outcome, error) {
	logging.ErrorWithContext(logger, "export failed", "export_failed",
		logging.String("category", services.Category(err)),
		logging.Error(err),
	)
	p.metrics.RecordExport(ctx, mode, string(StatusFailed), 0, 0)
	return Outcome{Status: StatusFailed, ExportID: exportID, Message: FailureMessage(err)}, err
}

// FailureMessage renders err for an operator.
func FailureMessage(err error) string {
	if errors.Is(err, ErrNoRecords) {
		return failurePrefix + NoRecordsMessage
	}
	return failurePrefix + err.Error()
}

// orderByIDs returns records in the order of ids, dropping ids without a
// matching record.
func orderByIDs(records []utterance.Record, ids []string) []utterance.Record {
	byID := make(map[string]utterance.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	ordered := make([]utterance.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered
}
