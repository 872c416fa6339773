package server

import "net/http"

type createCollectionRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"max=1024"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := s.decode(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}

	col, err := s.collections.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusCreated, toCollectionView(col))
}

type collectionListResponse struct {
	Collections []collectionView `json:"collections"`
	Total       int              `json:"total"`
	Limit       int              `json:"limit"`
	Offset      int              `json:"offset"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	cols, total, err := s.collections.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, collectionListResponse{
		Collections: toCollectionViews(cols),
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "collectionID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	col, err := s.collections.Get(r.Context(), id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, toCollectionView(col))
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "collectionID")
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	if err := s.collections.Delete(r.Context(), id); err != nil {
		respondError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
