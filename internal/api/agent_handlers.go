package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.runner.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

// runState adapts Start/Stop/Pause/Resume. ErrNotRunning still carries the
// current status.
func (s *Server) runState(op func(context.Context) (agent.Status, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := op(r.Context())
		if errors.Is(err, agent.ErrNotRunning) {
			JSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error(), "status": st})
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		JSON(w, http.StatusOK, st)
	}
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if s.trigger != nil && r.URL.Query().Get("wait") != "true" {
		if err := s.trigger(); err != nil {
			Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	res, err := s.runner.RunCycle(r.Context())
	if err != nil {
		JSON(w, statusFor(err), map[string]interface{}{"error": err.Error(), "result": res})
		return
	}
	JSON(w, http.StatusOK, res)
}

func (s *Server) resetCounters(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.runner.ResetCounters(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, cfg)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	st, err := s.runner.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st.Config)
}

func (s *Server) patchConfig(w http.ResponseWriter, r *http.Request) {
	var patch agent.ConfigPatch
	if err := decode(w, r, &patch); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cfg, err := s.runner.UpdateConfig(r.Context(), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.onConfig != nil {
		s.onConfig(cfg)
	}
	JSON(w, http.StatusOK, cfg)
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ActionFilter{
		ActionType: model.ActionType(q.Get("action_type")),
		Outcome:    model.Outcome(q.Get("outcome")),
		RunID:      q.Get("run_id"),
		Limit:      100,
	}
	var err error
	if v := q.Get("lead_id"); v != "" {
		if f.LeadID, err = strconv.ParseInt(v, 10, 64); err != nil {
			Error(w, http.StatusBadRequest, "invalid lead_id")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit <= 0 || f.Limit > 1000 {
			Error(w, http.StatusBadRequest, "limit must be within [1, 1000]")
			return
		}
	}
	if f.Since, err = parseSince(q.Get("since")); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.runner.ListActions(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.ActionLogEntry{}
	}
	JSON(w, http.StatusOK, entries)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.runner.Statistics(r.Context(), since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, st)
}

func (s *Server) healthReport(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		Error(w, http.StatusNotFound, "health checks are disabled")
		return
	}
	rep := s.health.Evaluate(r.Context())
	status := http.StatusOK
	if !rep.Healthy {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, rep)
}

// parseSince accepts RFC 3339 or a duration back from now ("24h").
func parseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return time.Time{}, errors.New("since must be RFC 3339 or a positive duration")
	}
	return time.Now().Add(-d), nil
}
