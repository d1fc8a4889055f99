package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/crowdocs/crowdocs/internal/intake"
	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/pagination"
)

type registrationRequest struct {
	ID           int64  `json:"id"`
	SourceURL    string `json:"source_url"`
	WorkflowName string `json:"workflow_name"`
}

func (d *Domain) registerWorkUnits(runtime *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			http.Error(w, "invalid registration body", http.StatusBadRequest)
			return
		}
		if len(reqs) == 0 {
			http.Error(w, "no registrations supplied", http.StatusBadRequest)
			return
		}

		regs := make([]intake.Registration, len(reqs))
		for i, req := range reqs {
			if req.ID == 0 || req.SourceURL == "" || req.WorkflowName == "" {
				http.Error(w, "registration requires id, source_url, and workflow_name", http.StatusBadRequest)
				return
			}
			regs[i] = intake.Registration{
				ID:           req.ID,
				SourceURL:    req.SourceURL,
				WorkflowName: req.WorkflowName,
			}
		}

		units, err := d.Intake.RegisterBatch(r.Context(), regs)
		if err != nil {
			writeError(w, runtime, err, workunits.MapHTTPStatus(err))
			return
		}

		writeJSON(w, http.StatusCreated, units)
	}
}

func (d *Domain) listWorkUnits(runtime *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := pagination.FromQuery(r.URL.Query(), runtime.Pagination)
		filters := workunits.FiltersFromQuery(r.URL.Query())

		result, err := d.Units.List(r.Context(), page, filters)
		if err != nil {
			writeError(w, runtime, err, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func (d *Domain) findWorkUnit(runtime *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid work unit id", http.StatusBadRequest)
			return
		}

		unit, err := d.Units.Find(r.Context(), id)
		if err != nil {
			writeError(w, runtime, err, workunits.MapHTTPStatus(err))
			return
		}

		writeJSON(w, http.StatusOK, unit)
	}
}

func (d *Domain) listDocuments(runtime *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := pagination.FromQuery(r.URL.Query(), runtime.Pagination)

		result, err := d.Documents.List(r.Context(), page)
		if err != nil {
			writeError(w, runtime, err, http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, runtime *Runtime, err error, status int) {
	if status >= http.StatusInternalServerError {
		runtime.Logger.Error("request failed", "error", err)
		http.Error(w, "internal server error", status)
		return
	}
	http.Error(w, publicMessage(err), status)
}

// publicMessage unwraps to the domain sentinel so internal detail never
// leaks into a client-facing error body.
func publicMessage(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		err = e
	}
	return err.Error()
}
