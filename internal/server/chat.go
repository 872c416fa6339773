package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/memory"
	"github.com/tkohara/ragchat/internal/service"
)

type chatRequest struct {
	Question        string   `json:"question" validate:"required,max=4000"`
	CollectionID    string   `json:"collection_id" validate:"required,uuid"`
	SessionID       string   `json:"session_id"`
	TopK            *int     `json:"top_k" validate:"omitempty,min=1,max=20"`
	ScoreThreshold  *float32 `json:"score_threshold" validate:"omitempty,gte=0,lte=1"`
	EnableReranking *bool    `json:"enable_reranking"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}

	collectionID, err := uuid.Parse(req.CollectionID)
	if err != nil {
		respondError(w, s.logger, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "collection_id must be a UUID"))
		return
	}

	// Reranking is on unless the caller switches it off.
	q := service.Query{
		Question:        req.Question,
		CollectionID:    collectionID,
		SessionID:       req.SessionID,
		TopK:            s.defaultTopK,
		ScoreThreshold:  s.defaultMinScore,
		EnableReranking: true,
	}
	if req.TopK != nil {
		q.TopK = *req.TopK
	}
	if req.ScoreThreshold != nil {
		q.ScoreThreshold = *req.ScoreThreshold
	}
	if req.EnableReranking != nil {
		q.EnableReranking = *req.EnableReranking
	}

	res, err := s.chat.Query(r.Context(), q)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, res)
}

type conversationResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []memory.Message `json:"messages"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msgs, err := s.chat.History(r.Context(), sessionID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if msgs == nil {
		msgs = []memory.Message{}
	}

	respond(w, http.StatusOK, conversationResponse{SessionID: sessionID, Messages: msgs})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.ClearHistory(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
