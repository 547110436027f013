package httpapi

import (
	"errors"
	"net/http"

	"github.com/dgavrilenko/shopkeeper/internal/common"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	user, pair, err := s.service.Register(r.Context(), req.Name, req.Email, req.Password, clientMeta(r))
	switch {
	case errors.Is(err, common.ErrValidation):
		respondError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, common.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, common.ErrInternal)
		return
	}

	s.setAuthCookies(w, pair)
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.service.Authorize(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, common.ErrInvalidCredentials)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, common.ErrInternal)
		return
	}

	pair, err := s.service.LogIn(r.Context(), user, clientMeta(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, common.ErrInternal)
		return
	}

	s.setAuthCookies(w, pair)
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, refreshCookieName)
	if refreshToken == "" {
		respondError(w, http.StatusUnauthorized, common.ErrUnauthorized)
		return
	}

	if err := s.service.LogOut(r.Context(), refreshToken); err != nil {
		respondError(w, http.StatusUnauthorized, common.ErrUnauthorized)
		return
	}

	clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// handleRefreshToken exchanges the refresh cookie for a fresh pair. Only a
// missing cookie is reported; an exchange failure still answers 200 so the
// storefront's background refresher never surfaces errors to the page.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, refreshCookieName)
	if refreshToken == "" {
		respondError(w, http.StatusUnauthorized, common.ErrUnauthorized)
		return
	}

	if _, pair, err := s.service.Refresh(r.Context(), refreshToken); err != nil {
		s.logger.Warn(r.Context(), "token refresh failed", "error", err)
	} else {
		s.setAuthCookies(w, pair)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Refreshed token successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleAdminPing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) handleHomePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Shopkeeper</title><h1>Shopkeeper</h1>"))
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Log in</title><h1>Log in</h1>"))
}

func (s *Server) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Admin</title><h1>Admin</h1>"))
}
