package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS topics (
	   id            BIGSERIAL PRIMARY KEY,
	   title         TEXT        NOT NULL CHECK (title <> ''),
	   sequence      INTEGER     NOT NULL,
	   status        SMALLINT    NOT NULL DEFAULT 0 CHECK (status IN (0, 1)),
	   quiz_file     TEXT        NOT NULL DEFAULT '',
	   quiz_checksum TEXT        NOT NULL DEFAULT '',
	   created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	 )`,
	`CREATE INDEX IF NOT EXISTS topics_sequence_idx ON topics (sequence, id)`,
	`CREATE TABLE IF NOT EXISTS quiz_questions (
	   id             BIGSERIAL PRIMARY KEY,
	   topic_id       BIGINT NOT NULL REFERENCES topics (id) ON DELETE CASCADE,
	   question       TEXT   NOT NULL,
	   option_a       TEXT   NOT NULL,
	   option_b       TEXT   NOT NULL,
	   option_c       TEXT   NOT NULL,
	   option_d       TEXT   NOT NULL,
	   correct_option TEXT   NOT NULL CHECK (correct_option IN ('a', 'b', 'c', 'd'))
	 )`,
	`CREATE INDEX IF NOT EXISTS quiz_questions_topic_idx ON quiz_questions (topic_id, id)`,
	`CREATE TABLE IF NOT EXISTS events (
	   id         BIGSERIAL PRIMARY KEY,
	   topic_id   BIGINT      NOT NULL,
	   event_type TEXT        NOT NULL,
	   data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	   created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	 )`,
	`CREATE INDEX IF NOT EXISTS events_topic_idx ON events (topic_id, created_at)`,
}

// Migrate creates the tables used by the course store.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
