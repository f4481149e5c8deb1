package progress_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
)

var tenAnswers = []string{"a", "b", "c", "d", "a", "b", "c", "d", "a", "b"}

type fixture struct {
	store  *course.MemoryStore
	events *course.MemoryEventLogger
	engine *progress.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := course.NewMemoryStore()
	events := course.NewMemoryEventLogger()
	return &fixture{
		store:  store,
		events: events,
		engine: progress.NewEngine(progress.EngineConfig{Store: store, Events: events}),
	}
}

// topic creates a topic whose quiz answers are the given letters.
func (f *fixture) topic(t *testing.T, title string, answers ...string) course.Topic {
	t.Helper()
	ctx := context.Background()
	topic, err := f.store.CreateTopic(ctx, title)
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	if len(answers) == 0 {
		return topic
	}
	qs := make([]course.QuestionInput, len(answers))
	for i, a := range answers {
		qs[i] = course.QuestionInput{
			Text: "Q?", OptionA: "1", OptionB: "2", OptionC: "3", OptionD: "4", CorrectOption: a,
		}
	}
	err = f.store.WithinTx(ctx, func(tx course.Tx) error {
		_, err := tx.ReplaceQuestions(ctx, topic.ID, qs)
		return err
	})
	if err != nil {
		t.Fatalf("ReplaceQuestions() error = %v", err)
	}
	return topic
}

func (f *fixture) status(t *testing.T, id int64) course.Status {
	t.Helper()
	topic, err := f.store.GetTopic(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTopic() error = %v", err)
	}
	return topic.Status
}

func (f *fixture) eventTypes() []string {
	var types []string
	for _, e := range f.events.Events() {
		types = append(types, e.EventType)
	}
	return types
}

func TestCompleteQuiz_ScoreFromAnswers(t *testing.T) {
	f := newFixture(t)
	topic := f.topic(t, "HTML", tenAnswers...)

	answers := append([]string(nil), tenAnswers...)
	answers[0] = "d"
	answers[5] = "A"

	got, err := f.engine.CompleteQuiz(context.Background(), topic.ID, progress.Submission{Answers: answers})
	if err != nil {
		t.Fatalf("CompleteQuiz() error = %v", err)
	}
	if got.Score != 80.0 {
		t.Errorf("Score = %v, want 80", got.Score)
	}
	if got.Outcome != progress.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", got.Outcome)
	}
	if got.Topic.Status != course.StatusCompleted || f.status(t, topic.ID) != course.StatusCompleted {
		t.Error("topic should be completed")
	}
	if len(got.Topic.Questions) != 10 {
		t.Errorf("returned topic has %d questions, want 10", len(got.Topic.Questions))
	}
}

func TestCompleteQuiz_Threshold(t *testing.T) {
	tests := []struct {
		name        string
		score       any
		wantOutcome progress.Outcome
		wantStatus  course.Status
	}{
		{"exactly 60", 60.0, progress.OutcomeCompleted, course.StatusCompleted},
		{"just below", 59.999, progress.OutcomeBelowThreshold, course.StatusNotCompleted},
		{"json number", json.Number("75"), progress.OutcomeCompleted, course.StatusCompleted},
		{"numeric string", " 60 ", progress.OutcomeCompleted, course.StatusCompleted},
		{"zero", 0, progress.OutcomeBelowThreshold, course.StatusNotCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			topic := f.topic(t, "HTML", "a")

			got, err := f.engine.CompleteQuiz(context.Background(), topic.ID, progress.Submission{Score: tt.score})
			if err != nil {
				t.Fatalf("CompleteQuiz() error = %v", err)
			}
			if got.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", got.Outcome, tt.wantOutcome)
			}
			if f.status(t, topic.ID) != tt.wantStatus {
				t.Errorf("status = %v, want %v", f.status(t, topic.ID), tt.wantStatus)
			}
		})
	}
}

func TestCompleteQuiz_BelowThresholdCarriesScore(t *testing.T) {
	f := newFixture(t)
	topic := f.topic(t, "HTML", "a", "b", "c")

	got, err := f.engine.CompleteQuiz(context.Background(), topic.ID, progress.Submission{Answers: []string{"a"}})
	if err != nil {
		t.Fatalf("CompleteQuiz() error = %v", err)
	}
	if got.Outcome != progress.OutcomeBelowThreshold {
		t.Fatalf("Outcome = %q, want below_threshold", got.Outcome)
	}
	if math.Abs(got.Score-100.0/3) > 1e-9 {
		t.Errorf("Score = %v, want 33.33", got.Score)
	}
	if types := f.eventTypes(); len(types) != 1 || types[0] != course.EventThresholdNotMet {
		t.Errorf("events = %v, want [threshold_not_met]", types)
	}
}

func TestCompleteQuiz_AnswersTakePrecedenceOverScore(t *testing.T) {
	f := newFixture(t)
	topic := f.topic(t, "HTML", "a", "b")

	got, err := f.engine.CompleteQuiz(context.Background(), topic.ID, progress.Submission{
		Answers: []string{},
		Score:   100,
	})
	if err != nil {
		t.Fatalf("CompleteQuiz() error = %v", err)
	}
	if got.Score != 0 || got.Outcome != progress.OutcomeBelowThreshold {
		t.Errorf("got %+v, want score 0 below threshold", got)
	}
}

func TestCompleteQuiz_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		quiz    []string
		sub     progress.Submission
		wantMsg string
	}{
		{"no quiz", nil, progress.Submission{Score: 100}, progress.MsgNoQuiz},
		{"nothing to score", []string{"a"}, progress.Submission{}, progress.MsgNothingToScore},
		{"score not numeric", []string{"a"}, progress.Submission{Score: "abc"}, progress.MsgScoreNotNumeric},
		{"score is bool", []string{"a"}, progress.Submission{Score: true}, progress.MsgScoreNotNumeric},
		{"score is NaN", []string{"a"}, progress.Submission{Score: "NaN"}, progress.MsgScoreNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			topic := f.topic(t, "HTML", tt.quiz...)

			_, err := f.engine.CompleteQuiz(context.Background(), topic.ID, tt.sub)
			var verr *progress.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("CompleteQuiz() error = %v, want ValidationError", err)
			}
			if verr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", verr.Message, tt.wantMsg)
			}
			if f.status(t, topic.ID) != course.StatusNotCompleted {
				t.Error("status must not change on validation error")
			}
			if len(f.events.Events()) != 0 {
				t.Errorf("events = %v, want none", f.eventTypes())
			}
		})
	}
}

func TestCompleteQuiz_TopicNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CompleteQuiz(context.Background(), 42, progress.Submission{Score: 100})
	if !errors.Is(err, course.ErrTopicNotFound) {
		t.Errorf("CompleteQuiz() error = %v, want ErrTopicNotFound", err)
	}
}

func TestCompleteQuiz_OrderingGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.topic(t, "A", "a", "b")
	b := f.topic(t, "B", "c", "d")
	pass := progress.Submission{Answers: []string{"c", "d"}}

	got, err := f.engine.CompleteQuiz(ctx, b.ID, pass)
	if err != nil {
		t.Fatalf("CompleteQuiz(B) error = %v", err)
	}
	if got.Outcome != progress.OutcomeBlocked || got.CanComplete() {
		t.Errorf("Outcome = %q, want blocked", got.Outcome)
	}
	if got.Score != 0 {
		t.Errorf("blocked attempt should carry no score, got %v", got.Score)
	}
	if f.status(t, b.ID) != course.StatusNotCompleted {
		t.Fatal("B must stay not completed while A is pending")
	}

	if _, err := f.engine.CompleteQuiz(ctx, a.ID, progress.Submission{Answers: []string{"a", "b"}}); err != nil {
		t.Fatalf("CompleteQuiz(A) error = %v", err)
	}

	got, err = f.engine.CompleteQuiz(ctx, b.ID, pass)
	if err != nil {
		t.Fatalf("retry CompleteQuiz(B) error = %v", err)
	}
	if got.Outcome != progress.OutcomeCompleted || f.status(t, b.ID) != course.StatusCompleted {
		t.Errorf("retry Outcome = %q, want completed", got.Outcome)
	}

	want := []string{course.EventCompletionBlocked, course.EventTopicCompleted, course.EventTopicCompleted}
	types := f.eventTypes()
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestCompleteQuiz_BlockedBeforeGrading(t *testing.T) {
	f := newFixture(t)
	f.topic(t, "A", "a")
	b := f.topic(t, "B", "a")

	got, err := f.engine.CompleteQuiz(context.Background(), b.ID, progress.Submission{})
	if err != nil {
		t.Fatalf("CompleteQuiz() error = %v, want blocked result", err)
	}
	if got.Outcome != progress.OutcomeBlocked {
		t.Errorf("Outcome = %q, want blocked", got.Outcome)
	}
}

func TestRequestStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.topic(t, "A")
	b := f.topic(t, "B")
	c := f.topic(t, "C")

	steps := []struct {
		name        string
		id          int64
		requested   course.Status
		wantApplied bool
		wantStatus  course.Status
	}{
		{"complete B before A is refused", b.ID, course.StatusCompleted, false, course.StatusNotCompleted},
		{"complete A", a.ID, course.StatusCompleted, true, course.StatusCompleted},
		{"complete A again is a no-op", a.ID, course.StatusCompleted, true, course.StatusCompleted},
		{"complete B", b.ID, course.StatusCompleted, true, course.StatusCompleted},
		{"reset A while B is completed is refused", a.ID, course.StatusNotCompleted, false, course.StatusCompleted},
		{"reset B", b.ID, course.StatusNotCompleted, true, course.StatusNotCompleted},
		{"reset A", a.ID, course.StatusNotCompleted, true, course.StatusNotCompleted},
		{"reset C that was never completed", c.ID, course.StatusNotCompleted, true, course.StatusNotCompleted},
	}

	for _, s := range steps {
		got, err := f.engine.RequestStatusChange(ctx, s.id, s.requested)
		if err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		if got.Applied != s.wantApplied {
			t.Errorf("%s: Applied = %v, want %v", s.name, got.Applied, s.wantApplied)
		}
		if got.Topic.Status != s.wantStatus {
			t.Errorf("%s: Status = %v, want %v", s.name, got.Topic.Status, s.wantStatus)
		}
		if !got.Applied && got.Reason == "" {
			t.Errorf("%s: refused change should carry a reason", s.name)
		}
	}

	want := []string{
		course.EventCompletionBlocked,
		course.EventTopicCompleted,
		course.EventTopicCompleted,
		course.EventCompletionBlocked,
		course.EventTopicReset,
		course.EventTopicReset,
	}
	types := f.eventTypes()
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
}

func TestRequestStatusChange_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	topic := f.topic(t, "A")

	_, err := f.engine.RequestStatusChange(context.Background(), topic.ID, course.Status(2))
	var verr *progress.ValidationError
	if !errors.As(err, &verr) || verr.Message != progress.MsgInvalidStatus {
		t.Errorf("RequestStatusChange() error = %v, want invalid status", err)
	}
}

// Every completed topic must have only completed topics before it, whatever
// sequence of calls produced the state.
func TestCompletedTopicsStayInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []int64
	for _, title := range []string{"A", "B", "C", "D"} {
		ids = append(ids, f.topic(t, title, "a").ID)
	}

	calls := []struct {
		idx    int
		status course.Status
		quiz   bool
	}{
		{2, course.StatusCompleted, false},
		{0, course.StatusCompleted, true},
		{1, course.StatusCompleted, false},
		{3, course.StatusCompleted, true},
		{0, course.StatusNotCompleted, false},
		{2, course.StatusCompleted, true},
		{1, course.StatusNotCompleted, false},
		{3, course.StatusCompleted, false},
		{2, course.StatusNotCompleted, false},
		{1, course.StatusNotCompleted, false},
		{0, course.StatusNotCompleted, false},
	}

	for i, c := range calls {
		var err error
		if c.quiz {
			_, err = f.engine.CompleteQuiz(ctx, ids[c.idx], progress.Submission{Answers: []string{"a"}})
		} else {
			_, err = f.engine.RequestStatusChange(ctx, ids[c.idx], c.status)
		}
		if err != nil {
			t.Fatalf("call %d: error = %v", i, err)
		}

		topics, _ := f.store.ListTopics(ctx)
		seenIncomplete := false
		for _, topic := range topics {
			if topic.Status == course.StatusCompleted && seenIncomplete {
				t.Fatalf("call %d: topic %q completed after an incomplete one", i, topic.Title)
			}
			if topic.Status != course.StatusCompleted {
				seenIncomplete = true
			}
		}
	}
}
