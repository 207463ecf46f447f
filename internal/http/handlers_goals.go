package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"metas/internal/core"
)

// createGoalRequest takes the target either in cents (target_amount) or as
// a decimal string in reais (target, "1.250,00" style commas accepted).
type createGoalRequest struct {
	Title        string `json:"title"`
	SlotCount    int    `json:"slot_count"`
	TargetAmount int64  `json:"target_amount"`
	Target       string `json:"target"`
	IsGroup      bool   `json:"is_group"`
	PayoutKey    string `json:"payout_key"`
}

func (req createGoalRequest) input() (core.GoalInput, error) {
	in := core.GoalInput{
		Title:        sanitizeInput(req.Title),
		SlotCount:    req.SlotCount,
		TargetAmount: core.Money{Cents: req.TargetAmount},
		IsGroup:      req.IsGroup,
		PayoutKey:    req.PayoutKey,
	}
	if strings.TrimSpace(req.Target) == "" {
		return in, nil
	}
	if req.TargetAmount != 0 {
		return core.GoalInput{}, &core.ValidationError{Fields: map[string]string{"target": "give target or target_amount, not both"}}
	}
	cents, err := core.ParseDecimalToCents(req.Target)
	if err != nil {
		return core.GoalInput{}, &core.ValidationError{Fields: map[string]string{"target": "malformed amount"}}
	}
	in.TargetAmount = core.Money{Cents: cents}
	return in, nil
}

// updateGoalRequest carries optional fields; absent ones stay unchanged.
type updateGoalRequest struct {
	Title        *string          `json:"title"`
	Status       *core.GoalStatus `json:"status"`
	PayoutKey    *string          `json:"payout_key"`
	TargetAmount *int64           `json:"target_amount"`
}

func (req updateGoalRequest) patch() core.GoalPatch {
	p := core.GoalPatch{Status: req.Status}
	if req.Title != nil {
		t := sanitizeInput(*req.Title)
		p.Title = &t
	}
	if req.PayoutKey != nil {
		k := core.DigitsOnly(*req.PayoutKey)
		p.PayoutKey = &k
	}
	if req.TargetAmount != nil {
		p.TargetAmount = &core.Money{Cents: *req.TargetAmount}
	}
	return p
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.deps.Services.Goals.List(r.Context(), stateFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.deps.Services.Goals.Create(r.Context(), stateFrom(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/goals/"+g.ID).
		Body(g).
		Write(w)
}

// handleGetGoal returns the goal together with its progress read model.
func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Services.Goals.Progress(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req updateGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	g, err := s.deps.Services.Goals.Update(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"), req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Services.Goals.Delete(r.Context(), stateFrom(r), chi.URLParam(r, "goalID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type aggregateView struct {
	GoalID        string     `json:"goal_id"`
	VerifiedTotal core.Money `json:"verified_total"`
	VerifiedSlots []int      `json:"verified_slots"`
	PendingCount  int        `json:"pending_count"`
	TargetAmount  core.Money `json:"target_amount"`
	Percentage    float64    `json:"percentage"`
	Reached       bool       `json:"reached"`
	VerifiedLabel string     `json:"verified_label"`
	TargetLabel   string     `json:"target_label"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")
	st := stateFrom(r)
	agg, err := s.deps.Services.Ledger.AggregateForGoal(r.Context(), st, goalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// AggregateForGoal has just refreshed the goal in st.
	g, ok := st.Goal(goalID)
	if !ok {
		writeError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, aggregateView{
		GoalID:        goalID,
		VerifiedTotal: agg.VerifiedTotal,
		VerifiedSlots: agg.VerifiedSlots,
		PendingCount:  agg.PendingCount,
		TargetAmount:  g.TargetAmount,
		Percentage:    core.ProgressPercentage(agg.VerifiedTotal, g.TargetAmount),
		Reached:       core.IsReached(agg.VerifiedTotal, g.TargetAmount),
		VerifiedLabel: core.FormatCurrency(agg.VerifiedTotal),
		TargetLabel:   core.FormatCurrency(g.TargetAmount),
	})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Services.Goals.Progress(r.Context(), stateFrom(r), chi.URLParam(r, "goalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"goal_id":                   p.Goal.ID,
		"ranking":                   p.Ranking,
		"remaining_per_participant": p.RemainingPerParticipant,
	})
}
