package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

var topicListKey = cache.Key("topics")

func topicKey(id int64) string {
	return cache.Key("topic", strconv.FormatInt(id, 10))
}

// invalidate drops cached views touched by a write to topic id.
func (s *Server) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, topicListKey, topicKey(id)); err != nil {
		slog.Warn("cache invalidation failed", "topic_id", id, "error", err)
	}
}

// cached serves key from the cache, falling back to load and storing its
// result. Cache failures degrade to a direct load.
func cached[T any](ctx context.Context, c TopicCache, key string, load func() (T, error)) (T, error) {
	var v T
	hit, err := c.Get(ctx, key, &v)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
	}
	if hit {
		return v, nil
	}

	v, err = load()
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
	return v, nil
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := cached(r.Context(), s.cache, topicListKey, func() ([]course.Topic, error) {
		return s.store.ListTopics(r.Context())
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, topics)
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	topic, err := cached(r.Context(), s.cache, topicKey(id), func() (course.Topic, error) {
		return s.store.GetTopic(r.Context(), id)
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, topic)
}

type createTopicRequest struct {
	Title string `json:"title"`
}

// handleCreateTopic ignores any status in the body; topics always start not
// completed.
func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if !s.readJSON(w, r, s.schemas.createTopic, &req) {
		return
	}

	topic, err := s.store.CreateTopic(r.Context(), req.Title)
	if errors.Is(err, course.ErrTitleRequired) {
		respondDetail(w, http.StatusBadRequest, "Title is required.")
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidate(r.Context(), topic.ID)
	course.Emit(s.events, course.Event{
		TopicID:   topic.ID,
		EventType: course.EventTopicCreated,
		Data:      map[string]any{"title": topic.Title, "sequence": topic.Sequence},
	})
	slog.Info("topic created", "topic_id", topic.ID, "title", topic.Title)
	respondJSON(w, http.StatusCreated, topic)
}

type updateStatusRequest struct {
	Status *json.Number `json:"status"`
}

type statusResponse struct {
	course.Topic
	Applied bool   `json:"applied"`
	Detail  string `json:"detail,omitempty"`
}

// handleUpdateStatus requests a status change. A change refused by curriculum
// order still answers 200 with the unchanged topic.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !s.readJSON(w, r, s.schemas.updateStatus, &req) {
		return
	}

	if req.Status == nil {
		if r.Method == http.MethodPut {
			respondDetail(w, http.StatusBadRequest, "Status is required.")
			return
		}
		topic, err := s.store.GetTopic(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, statusResponse{Topic: topic, Applied: true})
		return
	}

	n, err := req.Status.Int64()
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "Status must be 0 or 1.")
		return
	}
	change, err := s.progress.RequestStatusChange(r.Context(), id, course.Status(n))
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidate(r.Context(), id)
	respondJSON(w, http.StatusOK, statusResponse{
		Topic:   change.Topic,
		Applied: change.Applied,
		Detail:  change.Reason,
	})
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := topicID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteTopic(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	s.invalidate(r.Context(), id)
	course.Emit(s.events, course.Event{TopicID: id, EventType: course.EventTopicDeleted})
	slog.Info("topic deleted", "topic_id", id)
	w.WriteHeader(http.StatusNoContent)
}
