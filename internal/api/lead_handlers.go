package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

// LeadInput is the body of POST /api/leads.
type LeadInput struct {
	Email                string  `json:"email"`
	FirstName            string  `json:"first_name,omitempty"`
	LastName             string  `json:"last_name,omitempty"`
	Company              string  `json:"company,omitempty"`
	Industry             string  `json:"industry,omitempty"`
	PriorityScore        float64 `json:"priority_score,omitempty"`
	MaxFollowUps         *int    `json:"max_follow_ups,omitempty"`
	DaysBetweenFollowups *int    `json:"days_between_followups,omitempty"`
}

// Lead converts the input into a new lead with defaults applied.
func (in LeadInput) Lead() model.Lead {
	l := model.NewLead(in.Email)
	l.FirstName = in.FirstName
	l.LastName = in.LastName
	l.Company = in.Company
	l.Industry = in.Industry
	l.PriorityScore = in.PriorityScore
	if in.MaxFollowUps != nil {
		l.MaxFollowUps = *in.MaxFollowUps
	}
	if in.DaysBetweenFollowups != nil {
		l.DaysBetweenFollowups = *in.DaysBetweenFollowups
	}
	return l
}

// ReplyInput is the body of POST /api/leads/{id}/reply.
type ReplyInput struct {
	Kind model.Outcome `json:"kind"`
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LeadFilter{Limit: 100}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseLeadStatus(v)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			Error(w, http.StatusBadRequest, "limit must be within [1, 1000]")
			return
		}
		f.Limit = n
	}
	leads, err := s.runner.ListLeads(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	JSON(w, http.StatusOK, leads)
}

func (s *Server) addLead(w http.ResponseWriter, r *http.Request) {
	var in LeadInput
	if err := decode(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	lead, err := s.runner.AddLead(r.Context(), in.Lead())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, lead)
}

func (s *Server) leadOp(op func(context.Context, int64) (model.Lead, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := leadID(w, r)
		if !ok {
			return
		}
		lead, err := op(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		JSON(w, http.StatusOK, lead)
	}
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}
	in := ReplyInput{Kind: model.OutcomeReplied}
	if r.ContentLength != 0 {
		if err := decode(w, r, &in); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	lead, err := s.runner.RecordReply(r.Context(), id, in.Kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, lead)
}

func leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid lead id")
		return 0, false
	}
	return id, true
}
