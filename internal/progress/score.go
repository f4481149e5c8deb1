package progress

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-course/internal/course"
)

// Threshold is the minimum score, in percent, that completes a topic.
const Threshold = 60.0

// Validation messages returned to callers.
const (
	MsgNoQuiz          = "This topic does not contain a quiz."
	MsgMisconfigured   = "Quiz is not properly configured."
	MsgScoreNotNumeric = "Score must be a number."
	MsgNothingToScore  = "Provide answers or score to validate quiz."
	MsgInvalidStatus   = "Status must be 0 or 1."
)

// ValidationError is a client input problem.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// ScoreAnswers grades answers against questions by position. Missing answers
// count as wrong; extra answers are ignored.
func ScoreAnswers(questions []course.Question, answers []string) (float64, error) {
	if len(questions) == 0 {
		return 0, invalid(MsgMisconfigured)
	}

	correct := 0
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		if strings.ToLower(strings.TrimSpace(answers[i])) == q.CorrectOption {
			correct++
		}
	}
	return float64(100*correct) / float64(len(questions)), nil
}

// ParseScore coerces a decoded JSON value to a finite score.
func ParseScore(v any) (float64, error) {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case float32:
		f = float64(s)
	case int:
		f = float64(s)
	case int64:
		f = float64(s)
	case int32:
		f = float64(s)
	case json.Number:
		parsed, err := s.Float64()
		if err != nil {
			return 0, invalid(MsgScoreNotNumeric)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, invalid(MsgScoreNotNumeric)
		}
		f = parsed
	default:
		return 0, invalid(MsgScoreNotNumeric)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(MsgScoreNotNumeric)
	}
	return f, nil
}
