package handlers

import (
	"net/http"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
)

// MatchHandler handles identification and raw captures.
type MatchHandler struct {
	engine *engine.Engine
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(eng *engine.Engine) *MatchHandler {
	return &MatchHandler{engine: eng}
}

// CandidateResponse is one identity of an ambiguous verdict.
type CandidateResponse struct {
	ID         int64   `json:"id"`
	Alias      string  `json:"alias"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// MatchResponse is the verdict of POST /match. Fields are set per outcome.
type MatchResponse struct {
	Outcome    matcher.Outcome       `json:"outcome"`
	ID         int64                 `json:"id,omitempty"`
	Alias      string                `json:"alias,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	Distance   *float64              `json:"distance,omitempty"`
	Source     biometric.MatchSource `json:"source,omitempty"`
	Candidates []CandidateResponse   `json:"candidates,omitempty"`
	EventID    string                `json:"event_id,omitempty"`
	AuditError string                `json:"audit_error,omitempty"`
}

// Match handles POST /match. A multipart body matches the uploaded sample;
// otherwise a probe is captured from the sensor.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var (
		res engine.MatchResult
		err error
	)
	if isMultipart(r) {
		sample, sampleErr := readSample(w, r)
		if sampleErr != nil {
			if biometric.IsExtractionError(sampleErr) {
				respondEngineError(w, sampleErr)
				return
			}
			respondError(w, http.StatusBadRequest, sampleErr.Error())
			return
		}
		res, err = h.engine.MatchSample(r.Context(), sample)
	} else {
		res, err = h.engine.Match(r.Context())
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}

	resp := verdictResponse(res.Verdict)
	if res.Event != nil {
		resp.EventID = res.Event.EventID
	}
	resp.AuditError = auditMessage(res.AuditErr)
	respondJSON(w, http.StatusOK, resp)
}

func verdictResponse(v matcher.Verdict) MatchResponse {
	resp := MatchResponse{Outcome: v.Outcome()}
	switch v := v.(type) {
	case matcher.Matched:
		resp.ID = v.IdentityID
		resp.Alias = v.Alias
		resp.Confidence = v.Confidence
		resp.Source = v.Source
		if v.Source == biometric.SourceClassifier {
			resp.Distance = &v.Distance
		}
	case matcher.NoMatch:
		if v.HasBestDistance {
			resp.Distance = &v.BestDistance
		}
	case matcher.Ambiguous:
		resp.Candidates = make([]CandidateResponse, len(v.Candidates))
		for i, c := range v.Candidates {
			resp.Candidates[i] = CandidateResponse{ID: c.IdentityID, Alias: c.Alias, Distance: c.Distance, Confidence: c.Confidence}
		}
	}
	return resp
}

// Capture handles GET /capture: one raw image from the sensor as PNG.
func (h *MatchHandler) Capture(w http.ResponseWriter, r *http.Request) {
	png, err := h.engine.CaptureImage(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
