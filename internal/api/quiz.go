package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/ingest"
	"github.com/p-n-ai/pai-course/internal/progress"
)

// handleUploadQuiz replaces the topic's questions with a multipart upload
// in the "file" field.
func (s *Server) handleUploadQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondDetail(w, http.StatusRequestEntityTooLarge, "Quiz file too large.")
			return
		}
		respondDetail(w, http.StatusBadRequest, "A quiz file is required in the \"file\" field.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}

	report, err := s.ingestor.Ingest(r.Context(), id, ingest.Upload{Filename: hdr.Filename, Data: data})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if report.Outcome == ingest.OutcomeReplaced {
		s.invalidate(r.Context(), id)
	}
	respondJSON(w, http.StatusOK, report)
}

type completeQuizRequest struct {
	Answers []string `json:"answers"`
	Score   any      `json:"score"`
}

type completedResponse struct {
	Topic course.Topic `json:"topic"`
	Score float64      `json:"score"`
}

type blockedResponse struct {
	Detail      string `json:"detail"`
	CanComplete bool   `json:"can_complete"`
}

type belowThresholdResponse struct {
	Detail string  `json:"detail"`
	Score  float64 `json:"score"`
}

func (s *Server) handleCompleteQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	var req completeQuizRequest
	if !s.readJSON(w, r, s.schemas.completeQuiz, &req) {
		return
	}

	result, err := s.progress.CompleteQuiz(r.Context(), id, progress.Submission{
		Answers: req.Answers,
		Score:   req.Score,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	switch result.Outcome {
	case progress.OutcomeBlocked:
		respondJSON(w, http.StatusOK, blockedResponse{
			Detail:      progress.ReasonPriorIncomplete,
			CanComplete: false,
		})
	case progress.OutcomeBelowThreshold:
		respondJSON(w, http.StatusBadRequest, belowThresholdResponse{
			Detail: "Score is below the 60% threshold.",
			Score:  result.Score,
		})
	default:
		s.invalidate(r.Context(), id)
		respondJSON(w, http.StatusOK, completedResponse{Topic: result.Topic, Score: result.Score})
	}
}
