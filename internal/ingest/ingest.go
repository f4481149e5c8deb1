// Package ingest turns uploaded quiz files into question records.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/platform/storage"
)

// Outcome summarises what an ingestion run did.
type Outcome string

const (
	// OutcomeReplaced means the topic's questions were replaced, possibly
	// with an empty set.
	OutcomeReplaced Outcome = "replaced"
	// OutcomeUnavailable means the file is a document type this build
	// cannot read. Nothing was changed.
	OutcomeUnavailable Outcome = "capability_unavailable"
)

// ErrUnreadable is returned when a document cannot be parsed.
var ErrUnreadable = errors.New("unreadable quiz source")

// Upload is a quiz source file.
type Upload struct {
	Filename string
	Data     []byte
}

// Report is the result of one ingestion run.
type Report struct {
	TopicID       int64          `json:"topic_id"`
	Outcome       Outcome        `json:"outcome"`
	Inserted      int            `json:"inserted"`
	Skipped       int            `json:"skipped"`
	TrailingLines int            `json:"trailing_lines"`
	Encoding      string         `json:"encoding,omitempty"`
	Source        string         `json:"source,omitempty"`
	Diagnostics   []SkippedBlock `json:"diagnostics,omitempty"`
}

// Config holds dependencies for the ingestor.
type Config struct {
	Store  course.Store
	Blobs  storage.BlobStore // optional; accepted sources are archived here
	Events course.EventLogger
	// Extractors maps a lower-case extension to its extractor. A document
	// extension without an entry is reported as unavailable. Nil means
	// DefaultExtractors.
	Extractors map[string]Extractor
}

// Ingestor replaces a topic's questions with the contents of a quiz file.
type Ingestor struct {
	store      course.Store
	blobs      storage.BlobStore
	events     course.EventLogger
	extractors map[string]Extractor
}

// New creates an ingestor.
func New(cfg Config) *Ingestor {
	extractors := cfg.Extractors
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	events := cfg.Events
	if events == nil {
		events = course.NopEventLogger{}
	}
	return &Ingestor{
		store:      cfg.Store,
		blobs:      cfg.Blobs,
		events:     events,
		extractors: extractors,
	}
}

// ReadText resolves an upload to text. Document types go through their
// extractor, returning ErrCapabilityUnavailable when none is registered;
// everything else is decoded as text.
func (in *Ingestor) ReadText(up Upload) (text, encoding string, err error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if slices.Contains(DocumentExtensions, ext) {
		ex, ok := in.extractors[ext]
		if !ok || ex == nil {
			return "", "", fmt.Errorf("%s: %w", ext, ErrCapabilityUnavailable)
		}
		text, err := ex.Extract(up.Data)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		return text, strings.TrimPrefix(ext, "."), nil
	}

	text, encoding = Decode(up.Data)
	return text, encoding, nil
}

// Ingest parses up and replaces every question of the topic with the result.
// The replace is atomic. An unreadable document type yields
// OutcomeUnavailable with a nil error and leaves the topic untouched.
func (in *Ingestor) Ingest(ctx context.Context, topicID int64, up Upload) (Report, error) {
	report := Report{TopicID: topicID}

	if _, err := in.store.GetTopic(ctx, topicID); err != nil {
		return Report{}, err
	}

	text, encoding, err := in.ReadText(up)
	if errors.Is(err, ErrCapabilityUnavailable) {
		slog.Warn("quiz ingestion skipped",
			"topic_id", topicID,
			"filename", up.Filename,
			"reason", err.Error(),
		)
		report.Outcome = OutcomeUnavailable
		return report, nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("reading %s: %w", up.Filename, err)
	}
	report.Encoding = encoding

	parsed := Parse(text)
	for _, s := range parsed.Skipped {
		slog.Warn("skipping malformed quiz block",
			"topic_id", topicID,
			"line", s.Line,
			"answer_line", s.AnswerLine,
			"reason", s.Reason,
		)
	}

	checksum := storage.Checksum(up.Data)
	source := ""
	if in.blobs != nil {
		key := fmt.Sprintf("quizzes/%d/%s%s", topicID, checksum, strings.ToLower(filepath.Ext(up.Filename)))
		source, err = in.blobs.Put(key, bytes.NewReader(up.Data))
		if err != nil {
			return Report{}, fmt.Errorf("archiving quiz source: %w", err)
		}
	}

	err = in.store.WithinTx(ctx, func(tx course.Tx) error {
		if _, err := tx.LockTopic(ctx, topicID); err != nil {
			return err
		}
		n, err := tx.ReplaceQuestions(ctx, topicID, parsed.Questions)
		if err != nil {
			return err
		}
		report.Inserted = n
		if source != "" {
			return tx.SetQuizSource(ctx, topicID, source, checksum)
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("replacing questions: %w", err)
	}

	report.Outcome = OutcomeReplaced
	report.Skipped = len(parsed.Skipped)
	report.TrailingLines = parsed.TrailingLines
	report.Source = source
	report.Diagnostics = parsed.Skipped

	slog.Info("quiz ingested",
		"topic_id", topicID,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"encoding", report.Encoding,
	)
	course.Emit(in.events, course.Event{
		TopicID:   topicID,
		EventType: course.EventQuizIngested,
		Data: map[string]any{
			"inserted": report.Inserted,
			"skipped":  report.Skipped,
			"encoding": report.Encoding,
			"checksum": checksum,
		},
	})

	return report, nil
}
