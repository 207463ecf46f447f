package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	inv, err := s.deps.Services.Invitations.Invite(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"), body.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListGoalInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := s.deps.Services.Invitations.ListForGoal(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

func (s *Server) handleListMyInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := s.deps.Services.Invitations.ListMine(r.Context(), stateFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Services.Invitations.Accept(r.Context(), stateFrom(r), chi.URLParam(r, "invitationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleRejectInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Services.Invitations.Reject(r.Context(), stateFrom(r), chi.URLParam(r, "invitationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
