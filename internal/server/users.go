package server

import "net/http"

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=128"`
	Password string `json:"password" validate:"required,min=8"`
}

type registerResponse struct {
	User   userView `json:"user"`
	APIKey string   `json:"api_key"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}

	result, err := s.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusCreated, registerResponse{
		User:   toUserView(result.User),
		APIKey: result.APIKey,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}

	tok, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, tok)
}

type refreshRequest struct {
	Token string `json:"token" validate:"required"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := s.decode(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}

	tok, err := s.users.Refresh(r.Context(), req.Token)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, tok)
}

func (s *Server) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.users.RotateAPIKey(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, map[string]string{"api_key": key})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Me(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.users.Stats(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	respond(w, http.StatusOK, stats)
}
