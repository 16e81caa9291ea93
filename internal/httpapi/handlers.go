package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mvellano/pulsecheck/internal/store"
)

type roundRequest struct {
	Topic    string         `json:"topic" validate:"required_without=SurveyID"`
	SurveyID string         `json:"surveyId"`
	Answers  []store.Answer `json:"answers"`
}

type roundResponse struct {
	SurveyID  string           `json:"surveyId"`
	Questions []store.Question `json:"questions"`
}

type submitRequest struct {
	SurveyID string         `json:"surveyId" validate:"required"`
	Answers  []store.Answer `json:"answers"`
}

type submitResponse struct {
	SurveyID        string   `json:"surveyId"`
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

type chatRequest struct {
	SurveyID string           `json:"surveyId" validate:"required"`
	Message  string           `json:"message" validate:"required"`
	History  []store.ChatTurn `json:"history"`
}

type chatResponse struct {
	SurveyID string `json:"surveyId"`
	Reply    string `json:"reply"`
}

type listResponse struct {
	Surveys []store.SurveyInfo `json:"surveys"`
}

// handleRound creates a survey for a fresh topic or continues an existing
// one, returning the next question batch.
func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	var req roundRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	surveyID, questions, err := s.service.BeginRound(r.Context(), strings.TrimSpace(req.Topic), strings.TrimSpace(req.SurveyID), req.Answers)
	if err != nil {
		respondClassified(w, err)
		return
	}
	respondJSON(w, http.StatusOK, roundResponse{SurveyID: surveyID, Questions: questions})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sum, err := s.service.Submit(r.Context(), req.SurveyID, req.Answers)
	if err != nil {
		respondClassified(w, err)
		return
	}
	respondJSON(w, http.StatusOK, submitResponse{
		SurveyID:        req.SurveyID,
		Summary:         sum.Summary,
		Insights:        sum.Insights,
		Recommendations: sum.Recommendations,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := s.service.Chat(r.Context(), req.SurveyID, req.Message, req.History)
	if err != nil {
		respondClassified(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{SurveyID: req.SurveyID, Reply: reply})
}

func (s *Server) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.service.Record(r.Context(), id)
	if err != nil {
		respondClassified(w, err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "not_found", "unknown survey id")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	infos, err := s.service.List(r.Context())
	if err != nil {
		respondClassified(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Surveys: infos})
}
