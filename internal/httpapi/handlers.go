package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"strategy-lab/internal/trials"
)

// maxRequestBody bounds POST /studies payloads.
const maxRequestBody = 1 << 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startStudy(w http.ResponseWriter, r *http.Request) {
	if s.opts.Launcher == nil {
		writeError(w, http.StatusServiceUnavailable, "study launcher not configured")
		return
	}

	var req StudyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}

	studyID, err := s.opts.Launcher.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.opts.Logger.Error("start study", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, _ := s.opts.Launcher.Status(studyID)
	w.Header().Set("Location", "/studies/"+studyID)
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) studyStatus(w http.ResponseWriter, r *http.Request) {
	studyID := mux.Vars(r)["study"]
	if s.opts.Launcher == nil {
		writeError(w, http.StatusNotFound, "unknown study")
		return
	}
	status, ok := s.opts.Launcher.Status(studyID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown study")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) studyTrials(w http.ResponseWriter, r *http.Request) {
	studyID := mux.Vars(r)["study"]
	rank := r.URL.Query().Get("rank")

	agg, ok := s.loadStudy(w, r, studyID)
	if !ok {
		return
	}

	records := agg.Records()
	if rank != "" {
		metric, err := trials.ParseMetric(rank)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records, _ = agg.Ranked(metric)
	}

	resp := TrialsResponse{
		StudyID: studyID,
		Rank:    rank,
		Failed:  agg.Failed(),
		Trials:  make([]TrialDTO, len(records)),
	}
	for i, rec := range records {
		resp.Trials[i] = toTrialDTO(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) studyBest(w http.ResponseWriter, r *http.Request) {
	studyID := mux.Vars(r)["study"]

	agg, ok := s.loadStudy(w, r, studyID)
	if !ok {
		return
	}
	best := agg.Best()
	if best == nil {
		writeError(w, http.StatusNotFound, "no completed trial")
		return
	}
	writeJSON(w, http.StatusOK, toTrialDTO(*best))
}

// loadStudy reads a study's records into an aggregator. It writes the error
// response and returns false when the study has no records.
func (s *Server) loadStudy(w http.ResponseWriter, r *http.Request, studyID string) (*trials.Aggregator, bool) {
	if s.opts.Trials == nil {
		writeError(w, http.StatusServiceUnavailable, "trial store not configured")
		return nil, false
	}

	records, err := s.opts.Trials.GetByStudy(r.Context(), studyID)
	if err != nil {
		s.opts.Logger.Error("load trials", zap.String("study_id", studyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load trials")
		return nil, false
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "unknown study")
		return nil, false
	}

	agg := trials.NewAggregator()
	for _, rec := range records {
		if err := agg.Add(*rec); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return nil, false
		}
	}
	return agg, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
