package api

import (
	"net/http"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	mux.HandleFunc("POST /work-units", domain.registerWorkUnits(runtime))
	mux.HandleFunc("GET /work-units", domain.listWorkUnits(runtime))
	mux.HandleFunc("GET /work-units/{id}", domain.findWorkUnit(runtime))
	mux.HandleFunc("GET /documents", domain.listDocuments(runtime))
}
