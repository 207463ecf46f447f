package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"metas/internal/core"
)

func (s *Server) handleRequestSlots(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	slots, err := s.deps.Services.Pool.RequestSlots(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"), body.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"slots": slots})
}

func (s *Server) handleDrawSlot(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Services.Pool.DrawSlot(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleReleaseSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := pathInt(r, "slot")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Services.Pool.ReleaseOrConsumeSlot(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"), slot); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProofs(w http.ResponseWriter, r *http.Request) {
	proofs, err := s.deps.Services.Ledger.ListProofs(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proofs": proofs})
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	up, file, err := parseProofUpload(w, r, s.deps.MaxUploadSize, chi.URLParam(r, "goalID"))
	if err != nil {
		writeDecodeError(w, r, err)
		return
	}
	defer file.Close()

	p, err := s.deps.Services.Ledger.SubmitProof(r.Context(), stateFrom(r), up)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDecideProof(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approve *bool `json:"approve"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if body.Approve == nil {
		writeError(w, r, &core.ValidationError{Fields: map[string]string{"approve": "required"}})
		return
	}
	p, err := s.deps.Services.Ledger.DecideProof(r.Context(), stateFrom(r), chi.URLParam(r, "proofID"), *body.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleFile serves a stored proof file to participants of its goal.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")
	if _, err := s.deps.Services.Goals.Get(r.Context(), stateFrom(r), goalID); err != nil {
		writeError(w, r, err)
		return
	}
	name := chi.URLParam(r, "*")
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		writeError(w, r, core.ErrNotFound)
		return
	}
	http.StripPrefix("/files", s.deps.Files).ServeHTTP(w, r)
}
