package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
)

// IdentitiesHandler handles enrollment, listing and deletion.
type IdentitiesHandler struct {
	engine *engine.Engine
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(eng *engine.Engine) *IdentitiesHandler {
	return &IdentitiesHandler{engine: eng}
}

// EnrollRequest is the JSON body of a sensor-driven enrollment. Multipart
// uploads carry the same fields as form values.
type EnrollRequest struct {
	ID    int64  `json:"id"`
	Alias string `json:"alias"`
}

// IdentityResponse is one enrolled identity.
type IdentityResponse struct {
	ID         int64  `json:"id"`
	Alias      string `json:"alias"`
	SampleRef  string `json:"sample_ref,omitempty"`
	AuditError string `json:"audit_error,omitempty"`
}

// IdentityListResponse is a page of identities.
type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Count      int                `json:"count"`
}

// Enroll handles POST /identities. A multipart body enrolls the uploaded
// sample; a JSON body captures one from the sensor.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var (
		req EnrollRequest
		res engine.EnrollResult
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
		req.Alias = r.FormValue("alias")
		if v := r.FormValue("id"); v != "" {
			if req.ID, err = strconv.ParseInt(v, 10, 64); err != nil {
				respondError(w, http.StatusBadRequest, "invalid id")
				return
			}
		}
		res, err = h.engine.EnrollSample(r.Context(), engine.EnrollRequest(req), sample)
	} else {
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		res, err = h.engine.Enroll(r.Context(), engine.EnrollRequest(req))
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}

	log.Info().Int64("id", res.Record.ID).Str("alias", sanitizeForLog(res.Record.Alias)).Msg("enrolled via api")
	respondJSON(w, http.StatusCreated, IdentityResponse{
		ID:         res.Record.ID,
		Alias:      res.Record.Alias,
		SampleRef:  res.Record.SampleRef,
		AuditError: auditMessage(res.AuditErr),
	})
}

// List handles GET /identities?alias=&offset=&limit=.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := engine.ListQuery{Alias: query.Get("alias")}

	for name, dst := range map[string]*int{"offset": &q.Offset, "limit": &q.Limit} {
		v := query.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	list := h.engine.List(r.Context(), q)
	resp := IdentityListResponse{Identities: make([]IdentityResponse, len(list)), Count: len(list)}
	for i, it := range list {
		resp.Identities[i] = IdentityResponse{ID: it.ID, Alias: it.Alias, SampleRef: it.SampleRef}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := identityID(w, r)
	if !ok {
		return
	}
	it, found := h.engine.Identity(id)
	if !found {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, IdentityResponse{ID: it.ID, Alias: it.Alias, SampleRef: it.SampleRef})
}

// Delete handles DELETE /identities/{id}.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identityID(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Delete(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, IdentityResponse{
		ID:         res.Record.ID,
		Alias:      res.Record.Alias,
		AuditError: auditMessage(res.AuditErr),
	})
}

// Directory handles GET /directory: the aliases as the metadata directory
// knows them.
func (h *IdentitiesHandler) Directory(w http.ResponseWriter, r *http.Request) {
	aliases, err := h.engine.DirectoryAliases(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("listing directory aliases")
		respondError(w, http.StatusBadGateway, "metadata directory unavailable")
		return
	}
	respondJSON(w, http.StatusOK, aliases)
}

func identityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return 0, false
	}
	return id, true
}
