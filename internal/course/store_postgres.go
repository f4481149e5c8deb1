package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, title string) (Topic, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return Topic{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := Topic{Title: title, Status: StatusNotCompleted, Questions: []Question{}}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO topics (title, sequence, status)
		 SELECT $1, COALESCE(MAX(sequence), 0) + 1, 0 FROM topics
		 RETURNING id, sequence, created_at`,
		title,
	).Scan(&t.ID, &t.Sequence, &t.CreatedAt)
	if err != nil {
		return Topic{}, fmt.Errorf("create topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id int64) (Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTopic(s.pool.QueryRow(ctx,
		`SELECT id, title, sequence, status, quiz_file, quiz_checksum, created_at
		 FROM topics WHERE id = $1`,
		id,
	))
	if err != nil {
		return Topic{}, err
	}

	t.Questions, err = listQuestions(ctx, s.pool, id)
	if err != nil {
		return Topic{}, err
	}
	return t, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context) ([]Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, sequence, status, quiz_file, quiz_checksum, created_at
		 FROM topics
		 ORDER BY sequence, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	index := map[int64]int{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		t.Questions = []Question{}
		index[t.ID] = len(topics)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}

	qrows, err := s.pool.Query(ctx,
		`SELECT id, topic_id, question, option_a, option_b, option_c, option_d, correct_option
		 FROM quiz_questions
		 ORDER BY topic_id, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer qrows.Close()

	for qrows.Next() {
		q, err := scanQuestion(qrows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[q.TopicID]; ok {
			topics[i].Questions = append(topics[i].Questions, q)
		}
	}
	if err := qrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	if topics == nil {
		topics = []Topic{}
	}
	return topics, nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTopicNotFound
	}
	return nil
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
}

type postgresTx struct {
	tx pgx.Tx
}

func (p *postgresTx) LockTopic(ctx context.Context, id int64) (Topic, error) {
	return scanTopic(p.tx.QueryRow(ctx,
		`SELECT id, title, sequence, status, quiz_file, quiz_checksum, created_at
		 FROM topics WHERE id = $1
		 FOR UPDATE`,
		id,
	))
}

func (p *postgresTx) HasIncompleteBefore(ctx context.Context, t Topic) (bool, error) {
	var exists bool
	err := p.tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM topics
		   WHERE (sequence, id) < ($1, $2) AND status < 1
		 )`,
		t.Sequence, t.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check preceding topics: %w", err)
	}
	return exists, nil
}

func (p *postgresTx) HasCompletedAfter(ctx context.Context, t Topic) (bool, error) {
	var exists bool
	err := p.tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM topics
		   WHERE (sequence, id) > ($1, $2) AND status = 1
		 )`,
		t.Sequence, t.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check following topics: %w", err)
	}
	return exists, nil
}

func (p *postgresTx) SetStatus(ctx context.Context, id int64, status Status) error {
	cmd, err := p.tx.Exec(ctx, `UPDATE topics SET status = $2 WHERE id = $1`, id, int(status))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTopicNotFound
	}
	return nil
}

func (p *postgresTx) Questions(ctx context.Context, topicID int64) ([]Question, error) {
	return listQuestions(ctx, p.tx, topicID)
}

func (p *postgresTx) ReplaceQuestions(ctx context.Context, topicID int64, qs []QuestionInput) (int, error) {
	if _, err := p.tx.Exec(ctx, `DELETE FROM quiz_questions WHERE topic_id = $1`, topicID); err != nil {
		return 0, fmt.Errorf("delete questions: %w", err)
	}
	if len(qs) == 0 {
		return 0, nil
	}

	// Queued in file order so BIGSERIAL ids follow it.
	batch := &pgx.Batch{}
	for _, q := range qs {
		batch.Queue(
			`INSERT INTO quiz_questions (topic_id, question, option_a, option_b, option_c, option_d, correct_option)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			topicID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption,
		)
	}
	if err := p.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert questions: %w", err)
	}
	return len(qs), nil
}

func (p *postgresTx) SetQuizSource(ctx context.Context, id int64, file, checksum string) error {
	cmd, err := p.tx.Exec(ctx,
		`UPDATE topics SET quiz_file = $2, quiz_checksum = $3 WHERE id = $1`,
		id, file, checksum,
	)
	if err != nil {
		return fmt.Errorf("set quiz source: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTopicNotFound
	}
	return nil
}

func listQuestions(ctx context.Context, db querier, topicID int64) ([]Question, error) {
	rows, err := db.Query(ctx,
		`SELECT id, topic_id, question, option_a, option_b, option_c, option_d, correct_option
		 FROM quiz_questions
		 WHERE topic_id = $1
		 ORDER BY id`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

func scanTopic(row pgx.Row) (Topic, error) {
	var t Topic
	var status int16
	err := row.Scan(&t.ID, &t.Title, &t.Sequence, &status, &t.QuizFile, &t.QuizChecksum, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Topic{}, ErrTopicNotFound
		}
		return Topic{}, fmt.Errorf("scan topic: %w", err)
	}
	t.Status = Status(status)
	return t, nil
}

func scanQuestion(row pgx.Row) (Question, error) {
	var q Question
	if err := row.Scan(
		&q.ID,
		&q.TopicID,
		&q.Text,
		&q.OptionA,
		&q.OptionB,
		&q.OptionC,
		&q.OptionD,
		&q.CorrectOption,
	); err != nil {
		return Question{}, fmt.Errorf("scan question: %w", err)
	}
	return q, nil
}
