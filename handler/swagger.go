package handler

import "net/http"

// handleSwaggerFile serves the OpenAPI document read by the /docs UI.
func (h *Handler) handleSwaggerFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.json")
	}
}
