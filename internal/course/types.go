// Package course holds the curriculum data model and its persistence.
package course

import "time"

// Status is the completion state of a topic.
type Status int

const (
	StatusNotCompleted Status = 0
	StatusCompleted    Status = 1
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusNotCompleted || s == StatusCompleted
}

func (s Status) String() string {
	switch s {
	case StatusNotCompleted:
		return "not_completed"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Topic is one unit of the linear curriculum.
type Topic struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Sequence     int        `json:"sequence"`
	Status       Status     `json:"status"`
	QuizFile     string     `json:"quiz_file,omitempty"`
	QuizChecksum string     `json:"quiz_checksum,omitempty"`
	Questions    []Question `json:"questions"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasQuiz reports whether the topic is gated behind a quiz.
func (t Topic) HasQuiz() bool {
	return len(t.Questions) > 0
}

// Precedes reports whether t comes before other in curriculum order.
func (t Topic) Precedes(other Topic) bool {
	if t.Sequence != other.Sequence {
		return t.Sequence < other.Sequence
	}
	return t.ID < other.ID
}

// Question is a single four-option quiz question owned by a topic.
type Question struct {
	ID            int64  `json:"id"`
	TopicID       int64  `json:"topic_id"`
	Text          string `json:"question"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectOption string `json:"correct_option"`
}

// QuestionInput is a question that has not been stored yet.
type QuestionInput struct {
	Text          string
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectOption string // one of a, b, c, d
}
