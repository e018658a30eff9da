package archive

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"uttervault/internal/blobstore"
	"uttervault/internal/logging"
	"uttervault/internal/observe"
	"uttervault/internal/services"
	"uttervault/internal/transcode"
	"uttervault/internal/utterance"
)

// DefaultConcurrency bounds how many records are processed at once.
const DefaultConcurrency = 8

// ErrEmptyInput is returned when there are no records to archive.
var ErrEmptyInput = errors.New("no data found for the requested utterances")

// Transcoder converts downloaded audio before it is archived.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, ext string) (transcode.Result, error)
}

// Stats summarizes one assembled archive.
type Stats struct {
	Records      int
	AudioWritten int
	Missing      int
	Failed       int
	Transcoded   int
	Duplicates   int
}

// Options configures an Assembler.
type Options struct {
	Downloader  blobstore.Downloader
	Transcoder  Transcoder
	Concurrency int
	Logger      *slog.Logger
	Metrics     *observe.Metrics
	Now         func() time.Time
}

// Assembler builds ZIP archives from normalized records.
type Assembler struct {
	downloader  blobstore.Downloader
	transcoder  Transcoder
	concurrency int
	logger      *slog.Logger
	metrics     *observe.Metrics
	now         func() time.Time
}

// NewAssembler constructs an Assembler. A nil Transcoder archives audio as
// downloaded.
func NewAssembler(opts Options) *Assembler {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Assembler{
		downloader:  opts.Downloader,
		transcoder:  opts.Transcoder,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(opts.Logger, "archive"),
		metrics:     opts.Metrics,
		now:         now,
	}
}

type counters struct {
	audio, missing, failed, transcoded atomic.Int64
}

// Assemble builds the archive for records in order. Per-record audio
// failures become missing-audio markers; only an empty input, a cancelled
// context, or a serialization failure returns an error.
func (a *Assembler) Assemble(ctx context.Context, records []utterance.Record) ([]byte, Stats, error) {
	if len(records) == 0 {
		return nil, Stats{}, ErrEmptyInput
	}

	logger := logging.WithContext(ctx, a.logger)
	manifest := NewManifest()
	var stats Stats
	var c counters

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	seen := make(map[string]struct{}, len(records))
	for position, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			stats.Duplicates++
			logging.WarnWithContext(logger, "skipping duplicate utterance", "archive_duplicate_record",
				logging.String(logging.FieldUtteranceID, rec.ID),
				logging.Int("position", position),
				logging.String(logging.FieldImpact, "utterance appears once in the archive"),
			)
			continue
		}
		seen[rec.ID] = struct{}{}
		name, err := manifest.ReserveRecord(rec, position)
		if err != nil {
			logger.Error("failed to reserve archive folder",
				logging.String(logging.FieldUtteranceID, rec.ID),
				logging.Error(err),
			)
			continue
		}
		g.Go(func() error {
			entry := a.buildEntry(ctx, logger, rec, &c)
			if err := manifest.Fill(name, entry); err != nil {
				logger.Error("failed to record archive folder",
					logging.String(logging.FieldUtteranceID, rec.ID),
					logging.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, services.Wrap(services.ErrTransient, "archive", "assemble", "export cancelled", err)
	}

	folders := manifest.Folders()
	data, err := WriteZip(folders, a.now())
	if err != nil {
		return nil, Stats{}, services.Wrap(services.ErrExternalTool, "archive", "assemble", "serialize zip", err)
	}

	stats.Records = len(folders)
	stats.AudioWritten = int(c.audio.Load())
	stats.Missing = int(c.missing.Load())
	stats.Failed = int(c.failed.Load())
	stats.Transcoded = int(c.transcoded.Load())
	logger.Info("archive assembled",
		logging.Int("records", stats.Records),
		logging.Int("audio", stats.AudioWritten),
		logging.Int("missing", stats.Missing),
		logging.Int("failed", stats.Failed),
		logging.Int("transcoded", stats.Transcoded),
		logging.Int("bytes", len(data)),
	)
	return data, stats, nil
}

func (a *Assembler) buildEntry(ctx context.Context, logger *slog.Logger, rec utterance.Record, c *counters) Entry {
	entry := Entry{Metadata: MetadataCSV(rec)}
	logger = logger.With(logging.String(logging.FieldUtteranceID, rec.ID))

	primary, ok := rec.PrimaryRecording()
	if !ok {
		c.missing.Add(1)
		a.metrics.RecordAudioFailure(ctx, "missing")
		entry.Marker = MissingAudioMessage
		return entry
	}

	ext := AudioExt(primary)
	data, err := a.download(ctx, *primary.StorageKey)
	if err != nil {
		c.failed.Add(1)
		a.metrics.RecordAudioFailure(ctx, "download_failed")
		logger.Error("failed to download audio",
			logging.String(logging.FieldEventType, "audio_download_failed"),
			logging.String("storage_key", *primary.StorageKey),
			logging.String(logging.FieldErrorHint, "check storage credentials and that the object exists"),
			logging.Error(err),
		)
		entry.Marker = DownloadFailedMessage
		return entry
	}

	if a.transcoder != nil && transcode.NeedsTranscode(ext) {
		res, err := a.transcoder.Transcode(ctx, data, ext)
		if err != nil {
			c.failed.Add(1)
			a.metrics.RecordTranscode(ctx, "failed")
			a.metrics.RecordAudioFailure(ctx, "transcode_failed")
			logger.Error("failed to transcode audio",
				logging.String(logging.FieldEventType, "audio_transcode_failed"),
				logging.String("ext", ext),
				logging.String(logging.FieldErrorHint, "verify ffmpeg can decode the recording"),
				logging.Error(err),
			)
			entry.Marker = TranscodeFailedMessage
			return entry
		}
		if res.Converted {
			c.transcoded.Add(1)
			a.metrics.RecordTranscode(ctx, "ok")
			data, ext = res.Data, res.Ext
		}
	}

	c.audio.Add(1)
	entry.Audio = &AudioAsset{Data: data, Filename: AudioFilename(ext)}
	return entry
}

func (a *Assembler) download(ctx context.Context, key string) ([]byte, error) {
	if a.downloader == nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "download", "no storage backend configured", nil)
	}
	return a.downloader.Download(ctx, key)
}
