package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
)

func errInvalidReadStatus(v string) error {
	return errors.InvalidArgument("unknown read_status %q", v)
}

// resourceRequest is the caller-settable subset of a resource.
type resourceRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Subject            []string `json:"subject"`
	Creator            string   `json:"creator"`
	Publisher          string   `json:"publisher"`
	Language           string   `json:"language"`
	Type               string   `json:"type"`
	ClassificationCode string   `json:"classification_code"`
	ReadStatus         string   `json:"read_status"`
}

func (req resourceRequest) toResource() (*model.Resource, error) {
	r := &model.Resource{
		Title:              req.Title,
		Description:        req.Description,
		Subject:            req.Subject,
		Creator:            req.Creator,
		Publisher:          req.Publisher,
		Language:           req.Language,
		Type:               req.Type,
		ClassificationCode: req.ClassificationCode,
		ReadStatus:         model.ReadStatus(req.ReadStatus),
	}
	if req.ReadStatus != "" && !model.ValidReadStatus(r.ReadStatus) {
		return nil, errInvalidReadStatus(req.ReadStatus)
	}
	return r, nil
}

// handleResourceCreate serves POST /resources.
func (s *Server) handleResourceCreate(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	res, err := req.toResource()
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := s.ingest.Ingest(r.Context(), res)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleResourceGet serves GET /resources/{id}.
func (s *Server) handleResourceGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.ingest.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleResourceUpdate serves PUT /resources/{id}.
func (s *Server) handleResourceUpdate(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	res, err := req.toResource()
	if err != nil {
		writeError(w, err)
		return
	}
	res.ID = chi.URLParam(r, "id")

	updated, err := s.ingest.Update(r.Context(), res)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleResourceDelete serves DELETE /resources/{id}.
func (s *Server) handleResourceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
