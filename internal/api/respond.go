package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/sdsbook/internal/engine"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

const maxBodyBytes int64 = 64 << 10

// errorBody is the {error, message} shape every failure is reported in.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

// respondJSON sends payload with status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	setHeaders(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, errorBody{Error: kind, Message: message})
}

// respondFailure reports a workflow or store error with the status its kind maps to.
func respondFailure(w http.ResponseWriter, err error) {
	f := workflow.AsFailure(err)
	respondJSON(w, statusFor(f.Kind), errorBody{Error: f.Kind, Message: f.Message})
}

func statusFor(kind string) int {
	switch kind {
	case engine.KindValidation:
		return http.StatusBadRequest
	case workflow.KindCustomerNotFound, workflow.KindVehicleNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// decodeJSONBody reads at most maxBodyBytes of JSON into dst.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	if r.Body == nil {
		return http.StatusBadRequest, errors.New("request body required")
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body too large (max %d bytes)", maxBodyBytes)
		}
		return http.StatusBadRequest, err
	}
	if len(body) == 0 {
		return http.StatusBadRequest, errors.New("request body required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return http.StatusBadRequest, fmt.Errorf("malformed JSON: %w", err)
	}
	return 0, nil
}
