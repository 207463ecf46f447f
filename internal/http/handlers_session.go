package http

import (
	"context"
	"net/http"

	"metas/internal/core"
	"metas/internal/middleware/auth"
	"metas/internal/state"
)

type stateKey struct{}

func stateFrom(r *http.Request) *state.AppState {
	st, _ := r.Context().Value(stateKey{}).(*state.AppState)
	if st == nil {
		// Signed-out state: every service call answers NotAuthenticated.
		return state.New()
	}
	return st
}

// withSession attaches the caller's working set, signing them in on the
// first request after a restart or an expired snapshot.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := auth.UserFromContext(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		st, ok := s.deps.Sessions.Get(u.ID)
		if !ok {
			st, err = s.signIn(r.Context(), u)
			if err != nil {
				writeError(w, r, err)
				return
			}
		}
		ctx := context.WithValue(r.Context(), stateKey{}, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) signIn(ctx context.Context, u core.User) (*state.AppState, error) {
	st := state.New()
	if _, err := s.deps.Services.Profile.SignIn(ctx, st, u); err != nil {
		return nil, err
	}
	s.deps.Sessions.Put(u.ID, st)
	return st, nil
}

type sessionView struct {
	User        core.User         `json:"user"`
	Goals       []core.Goal       `json:"goals"`
	Invitations []core.Invitation `json:"invitations"`
}

func viewOf(st *state.AppState) sessionView {
	u, _ := st.User()
	return sessionView{User: u, Goals: st.Goals(), Invitations: st.Invitations()}
}

// handleSignIn reloads the caller's working set from the backend.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	u, err := auth.UserFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.signIn(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	u, err := st.RequireUser()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Services.Profile.SignOut(r.Context(), st)
	s.deps.Sessions.Drop(u.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r)
	if _, err := st.RequireUser(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (s *Server) handleUpdatePayoutKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PayoutKey string `json:"payout_key"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	u, err := s.deps.Services.Profile.UpdatePayoutKey(r.Context(), stateFrom(r), body.PayoutKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
