// Package curriculum seeds an empty store from a YAML curriculum manifest.
package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/ingest"
)

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	for i, e := range m.Topics {
		if strings.TrimSpace(e.Title) == "" {
			return Manifest{}, fmt.Errorf("manifest %s: topic %d has no title", path, i+1)
		}
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// QuizPath returns the resolved location of an entry's quiz file.
func (m Manifest) QuizPath(e Entry) string {
	if e.Quiz == "" || filepath.IsAbs(e.Quiz) {
		return e.Quiz
	}
	return filepath.Join(m.dir, e.Quiz)
}

// QuizIngestor loads quiz files into topics.
type QuizIngestor interface {
	Ingest(ctx context.Context, topicID int64, up ingest.Upload) (ingest.Report, error)
}

// Seeder creates manifest topics in a store.
type Seeder struct {
	Store    course.Store
	Ingestor QuizIngestor
}

// Seed creates every manifest topic in order and ingests its quiz. A store
// that already holds topics is left alone. It returns the number of topics
// created.
func (s *Seeder) Seed(ctx context.Context, m Manifest) (int, error) {
	existing, err := s.Store.ListTopics(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing topics: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("curriculum seed skipped", "existing_topics", len(existing))
		return 0, nil
	}

	created := 0
	for _, e := range m.Topics {
		topic, err := s.Store.CreateTopic(ctx, e.Title)
		if err != nil {
			return created, fmt.Errorf("creating topic %q: %w", e.Title, err)
		}
		created++

		path := m.QuizPath(e)
		if path == "" || s.Ingestor == nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return created, fmt.Errorf("reading quiz for %q: %w", e.Title, err)
		}
		report, err := s.Ingestor.Ingest(ctx, topic.ID, ingest.Upload{Filename: filepath.Base(path), Data: data})
		if err != nil {
			return created, fmt.Errorf("ingesting quiz for %q: %w", e.Title, err)
		}
		if report.Outcome == ingest.OutcomeUnavailable {
			slog.Warn("seed quiz not loaded", "topic_id", topic.ID, "path", path)
		}
	}

	slog.Info("curriculum seeded", "topics", created)
	return created, nil
}
