// Package progress gates topic completion on curriculum order and quiz score.
package progress

import (
	"context"
	"log/slog"

	"github.com/p-n-ai/pai-course/internal/course"
)

// Outcome is the result of a quiz completion attempt.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeBlocked        Outcome = "blocked"
	OutcomeBelowThreshold Outcome = "below_threshold"
)

// Reasons a status change was not applied.
const (
	ReasonPriorIncomplete = "Previous topics are not completed yet."
	ReasonLaterCompleted  = "Later topics are already completed."
)

// Submission is a learner's quiz payload. A nil Answers means no answers
// were sent; an empty non-nil slice is graded as all wrong.
type Submission struct {
	Answers []string
	Score   any
}

// Completion is the result of CompleteQuiz.
type Completion struct {
	Outcome Outcome
	Topic   course.Topic
	Score   float64
}

// CanComplete reports whether ordering allowed the attempt to be graded.
func (c Completion) CanComplete() bool {
	return c.Outcome != OutcomeBlocked
}

// StatusChange is the result of RequestStatusChange.
type StatusChange struct {
	Topic   course.Topic
	Applied bool
	Reason  string
}

// EngineConfig holds dependencies for the progress engine.
type EngineConfig struct {
	Store  course.Store
	Events course.EventLogger
}

// Engine applies status changes in curriculum order.
type Engine struct {
	store  course.Store
	events course.EventLogger
}

// NewEngine creates a progress engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = course.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = course.NopEventLogger{}
	}
	return &Engine{store: store, events: events}
}

// RequestStatusChange sets the topic's status unless doing so would break
// curriculum order. Completing requires every earlier topic to be completed;
// resetting requires no later topic to be completed. A refused change is not
// an error: the topic is returned unchanged with Applied false.
func (e *Engine) RequestStatusChange(ctx context.Context, id int64, requested course.Status) (StatusChange, error) {
	if !requested.Valid() {
		return StatusChange{}, invalid(MsgInvalidStatus)
	}

	var change StatusChange
	var previous course.Status
	err := e.store.WithinTx(ctx, func(tx course.Tx) error {
		t, err := tx.LockTopic(ctx, id)
		if err != nil {
			return err
		}
		previous = t.Status
		change = StatusChange{Applied: true}

		if requested == t.Status {
			return nil
		}

		var blocked bool
		if requested == course.StatusCompleted {
			blocked, err = tx.HasIncompleteBefore(ctx, t)
			change.Reason = ReasonPriorIncomplete
		} else {
			blocked, err = tx.HasCompletedAfter(ctx, t)
			change.Reason = ReasonLaterCompleted
		}
		if err != nil {
			return err
		}
		if blocked {
			change.Applied = false
			return nil
		}
		change.Reason = ""
		return tx.SetStatus(ctx, id, requested)
	})
	if err != nil {
		return StatusChange{}, err
	}

	t, err := e.store.GetTopic(ctx, id)
	if err != nil {
		return StatusChange{}, err
	}
	change.Topic = t

	switch {
	case !change.Applied:
		slog.Info("status change refused", "topic_id", id, "requested", requested.String(), "reason", change.Reason)
		course.Emit(e.events, course.Event{
			TopicID:   id,
			EventType: course.EventCompletionBlocked,
			Data:      map[string]any{"requested": int(requested), "reason": change.Reason},
		})
	case previous != requested:
		e.emitStatus(id, requested, "status_update", nil)
	}
	return change, nil
}

// CompleteQuiz grades a submission and completes the topic when the score
// reaches Threshold. Ordering is checked before grading, so a blocked attempt
// carries no score.
func (e *Engine) CompleteQuiz(ctx context.Context, id int64, sub Submission) (Completion, error) {
	var result Completion
	var changed bool
	err := e.store.WithinTx(ctx, func(tx course.Tx) error {
		t, err := tx.LockTopic(ctx, id)
		if err != nil {
			return err
		}
		questions, err := tx.Questions(ctx, id)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return invalid(MsgNoQuiz)
		}

		blocked, err := tx.HasIncompleteBefore(ctx, t)
		if err != nil {
			return err
		}
		if blocked {
			result = Completion{Outcome: OutcomeBlocked}
			return nil
		}

		score, err := grade(questions, sub)
		if err != nil {
			return err
		}
		result.Score = score
		if score < Threshold {
			result.Outcome = OutcomeBelowThreshold
			return nil
		}

		result.Outcome = OutcomeCompleted
		changed = t.Status != course.StatusCompleted
		return tx.SetStatus(ctx, id, course.StatusCompleted)
	})
	if err != nil {
		return Completion{}, err
	}

	t, err := e.store.GetTopic(ctx, id)
	if err != nil {
		return Completion{}, err
	}
	result.Topic = t

	switch result.Outcome {
	case OutcomeBlocked:
		course.Emit(e.events, course.Event{
			TopicID:   id,
			EventType: course.EventCompletionBlocked,
			Data:      map[string]any{"reason": ReasonPriorIncomplete},
		})
	case OutcomeBelowThreshold:
		course.Emit(e.events, course.Event{
			TopicID:   id,
			EventType: course.EventThresholdNotMet,
			Data:      map[string]any{"score": result.Score, "threshold": Threshold},
		})
	case OutcomeCompleted:
		if changed {
			e.emitStatus(id, course.StatusCompleted, "quiz", map[string]any{"score": result.Score})
		}
	}

	slog.Info("quiz submitted",
		"topic_id", id,
		"outcome", string(result.Outcome),
		"score", result.Score,
	)
	return result, nil
}

func grade(questions []course.Question, sub Submission) (float64, error) {
	if sub.Answers != nil {
		return ScoreAnswers(questions, sub.Answers)
	}
	if sub.Score != nil {
		return ParseScore(sub.Score)
	}
	return 0, invalid(MsgNothingToScore)
}

func (e *Engine) emitStatus(id int64, status course.Status, via string, extra map[string]any) {
	eventType := course.EventTopicCompleted
	if status == course.StatusNotCompleted {
		eventType = course.EventTopicReset
	}
	data := map[string]any{"via": via}
	for k, v := range extra {
		data[k] = v
	}
	course.Emit(e.events, course.Event{TopicID: id, EventType: eventType, Data: data})
}
