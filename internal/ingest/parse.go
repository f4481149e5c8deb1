package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/p-n-ai/pai-course/internal/course"
)

// BlockLines is the number of lines in one question block:
// prompt, four options, answer.
const BlockLines = 6

// Reasons a block is skipped.
const (
	ReasonMissingColon  = "answer line has no ':'"
	ReasonInvalidAnswer = "answer is not one of a, b, c, d"
)

// SkippedBlock describes a block the parser discarded.
type SkippedBlock struct {
	Line       int    `json:"line"` // 1-based index of the block's first non-blank line
	Question   string `json:"question"`
	AnswerLine string `json:"answer_line"`
	Reason     string `json:"reason"`
}

// ParseResult is the outcome of parsing a quiz text.
type ParseResult struct {
	Questions     []course.QuestionInput
	Skipped       []SkippedBlock
	TrailingLines int // lines left over after the last complete block
}

// Parse reads quiz text as consecutive six-line blocks. Blank lines are
// dropped before blocking, malformed blocks are skipped, and an incomplete
// final block is ignored.
func Parse(text string) ParseResult {
	lines := nonBlankLines(text)
	res := ParseResult{Questions: []course.QuestionInput{}}

	i := 0
	for ; i+BlockLines <= len(lines); i += BlockLines {
		block := lines[i : i+BlockLines]

		answer, reason := answerLetter(block[5])
		if reason != "" {
			res.Skipped = append(res.Skipped, SkippedBlock{
				Line:       i + 1,
				Question:   block[0],
				AnswerLine: block[5],
				Reason:     reason,
			})
			continue
		}

		res.Questions = append(res.Questions, course.QuestionInput{
			Text:          block[0],
			OptionA:       optionText(block[1]),
			OptionB:       optionText(block[2]),
			OptionC:       optionText(block[3]),
			OptionD:       optionText(block[4]),
			CorrectOption: answer,
		})
	}
	res.TrailingLines = len(lines) - i

	return res
}

func nonBlankLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// optionText turns "A) <style>" into "<style>".
func optionText(line string) string {
	if _, after, ok := strings.Cut(line, ")"); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(line)
}

// answerLetter turns "Javob: B" into "b".
func answerLetter(line string) (string, string) {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return "", ReasonMissingColon
	}

	after = strings.ToLower(strings.TrimSpace(after))
	r, size := utf8.DecodeRuneInString(after)
	if size == 0 {
		return "", ReasonInvalidAnswer
	}
	switch r {
	case 'a', 'b', 'c', 'd':
		return string(r), ""
	default:
		return "", ReasonInvalidAnswer
	}
}
