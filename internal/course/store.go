package course

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrTopicNotFound is returned when a topic id does not exist.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrTitleRequired is returned when a topic title is blank.
	ErrTitleRequired = errors.New("title is required")
)

// Store persists topics and their questions.
type Store interface {
	CreateTopic(ctx context.Context, title string) (Topic, error)
	GetTopic(ctx context.Context, id int64) (Topic, error)
	ListTopics(ctx context.Context) ([]Topic, error)
	DeleteTopic(ctx context.Context, id int64) error

	// WithinTx runs fn as one atomic unit. If fn returns an error nothing it
	// did is persisted.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside WithinTx.
type Tx interface {
	// LockTopic loads a topic (without questions) and holds it for update
	// until the transaction ends.
	LockTopic(ctx context.Context, id int64) (Topic, error)
	// HasIncompleteBefore reports whether any topic preceding t is not completed.
	HasIncompleteBefore(ctx context.Context, t Topic) (bool, error)
	// HasCompletedAfter reports whether any topic following t is completed.
	HasCompletedAfter(ctx context.Context, t Topic) (bool, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	// Questions returns the topic's questions in id order.
	Questions(ctx context.Context, topicID int64) ([]Question, error)
	// ReplaceQuestions deletes every question of the topic, then inserts qs.
	ReplaceQuestions(ctx context.Context, topicID int64, qs []QuestionInput) (int, error)
	SetQuizSource(ctx context.Context, id int64, file, checksum string) error
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	return title, nil
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	topics         map[int64]Topic
	questions      map[int64][]Question
	nextTopicID    int64
	nextQuestionID int64
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		topics:         make(map[int64]Topic, len(s.topics)),
		questions:      make(map[int64][]Question, len(s.questions)),
		nextTopicID:    s.nextTopicID,
		nextQuestionID: s.nextQuestionID,
	}
	for id, t := range s.topics {
		c.topics[id] = t
	}
	for id, qs := range s.questions {
		c.questions[id] = append([]Question(nil), qs...)
	}
	return c
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			topics:    make(map[int64]Topic),
			questions: make(map[int64][]Question),
		},
	}
}

func (s *MemoryStore) CreateTopic(_ context.Context, title string) (Topic, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return Topic{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := 0
	for _, t := range s.state.topics {
		if t.Sequence > seq {
			seq = t.Sequence
		}
	}

	s.state.nextTopicID++
	t := Topic{
		ID:        s.state.nextTopicID,
		Title:     title,
		Sequence:  seq + 1,
		Status:    StatusNotCompleted,
		Questions: []Question{},
		CreatedAt: time.Now(),
	}
	s.state.topics[t.ID] = t
	return t, nil
}

func (s *MemoryStore) GetTopic(_ context.Context, id int64) (Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.topics[id]
	if !ok {
		return Topic{}, ErrTopicNotFound
	}
	return s.state.withQuestions(t), nil
}

func (s *MemoryStore) ListTopics(_ context.Context) ([]Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]Topic, 0, len(s.state.topics))
	for _, t := range s.state.topics {
		topics = append(topics, s.state.withQuestions(t))
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Precedes(topics[j]) })
	return topics, nil
}

func (s *MemoryStore) DeleteTopic(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.topics[id]; !ok {
		return ErrTopicNotFound
	}
	delete(s.state.topics, id)
	delete(s.state.questions, id)
	return nil
}

// WithinTx holds the store lock for the whole of fn and applies its changes
// only when fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s memoryState) withQuestions(t Topic) Topic {
	t.Questions = append([]Question{}, s.questions[t.ID]...)
	return t
}

type memoryTx struct {
	state memoryState
}

func (tx *memoryTx) LockTopic(_ context.Context, id int64) (Topic, error) {
	t, ok := tx.state.topics[id]
	if !ok {
		return Topic{}, ErrTopicNotFound
	}
	t.Questions = nil
	return t, nil
}

func (tx *memoryTx) HasIncompleteBefore(_ context.Context, t Topic) (bool, error) {
	for _, other := range tx.state.topics {
		if other.Precedes(t) && other.Status != StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) HasCompletedAfter(_ context.Context, t Topic) (bool, error) {
	for _, other := range tx.state.topics {
		if t.Precedes(other) && other.Status == StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) SetStatus(_ context.Context, id int64, status Status) error {
	t, ok := tx.state.topics[id]
	if !ok {
		return ErrTopicNotFound
	}
	t.Status = status
	tx.state.topics[id] = t
	return nil
}

func (tx *memoryTx) Questions(_ context.Context, topicID int64) ([]Question, error) {
	if _, ok := tx.state.topics[topicID]; !ok {
		return nil, ErrTopicNotFound
	}
	return append([]Question{}, tx.state.questions[topicID]...), nil
}

func (tx *memoryTx) ReplaceQuestions(_ context.Context, topicID int64, qs []QuestionInput) (int, error) {
	if _, ok := tx.state.topics[topicID]; !ok {
		return 0, ErrTopicNotFound
	}

	stored := make([]Question, 0, len(qs))
	for _, in := range qs {
		tx.state.nextQuestionID++
		stored = append(stored, Question{
			ID:            tx.state.nextQuestionID,
			TopicID:       topicID,
			Text:          in.Text,
			OptionA:       in.OptionA,
			OptionB:       in.OptionB,
			OptionC:       in.OptionC,
			OptionD:       in.OptionD,
			CorrectOption: in.CorrectOption,
		})
	}
	tx.state.questions[topicID] = stored
	return len(stored), nil
}

func (tx *memoryTx) SetQuizSource(_ context.Context, id int64, file, checksum string) error {
	t, ok := tx.state.topics[id]
	if !ok {
		return ErrTopicNotFound
	}
	t.QuizFile = file
	t.QuizChecksum = checksum
	tx.state.topics[id] = t
	return nil
}
