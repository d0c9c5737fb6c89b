package web

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/cargo"
)

// writeError renders a failure in the error envelope cargo expects. Backend
// failures are logged server-side with a correlation id and the full causal
// chain; the client only ever sees the status class, message and detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.FromBackend(err)

	detail := apiErr.Message
	if apiErr.Details != "" {
		detail = apiErr.Details
	}

	if apiErr.HTTP >= 500 {
		correlationID := uuid.New().String()
		s.logger.Error(r.Context(), "request failed",
			"correlation_id", correlationID,
			"method", r.Method,
			"path", r.URL.Path,
			"error", apiErr.Error(),
		)
		// Internal details stay in the log; the client gets the id to quote.
		detail = "internal error, correlation id " + correlationID
	}

	writeJSON(w, apiErr.HTTP, cargo.NewAPIResponseErrors(detail))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
