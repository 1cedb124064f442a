package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

// SuccessResponse is the envelope of every successful response body.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the envelope of every failed one. Code is set for domain
// errors so clients can branch without matching on message text.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:       http.StatusBadRequest,
	domain.ErrCodeInvalidOperation: http.StatusBadRequest,
	domain.ErrCodeUnauthorized:     http.StatusUnauthorized,
	domain.ErrCodeNotFound:         http.StatusNotFound,
	domain.ErrCodeAlreadyExists:    http.StatusConflict,
	domain.ErrCodeConflict:         http.StatusConflict,
}

func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DecodeJSON reads the request body into v. On failure it writes the error
// response itself and returns false: 413 when the body exceeded the router's
// size limit, the domain error's status when a field rejected its value, 400
// otherwise.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		HandleError(w, de)
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}

// StatusFor maps err onto an HTTP status. Anything without a known domain
// code is a 500.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		if status, ok := statusByCode[de.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// HandleError writes the response for a failed handler. 500s are logged and
// their message replaced, so driver and network details never reach clients.
func HandleError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	var de *domain.DomainError
	if status == http.StatusInternalServerError || !errors.As(err, &de) {
		log.Printf("api: internal error: %v", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	JSON(w, status, ErrorResponse{Error: de.Message, Code: de.Code})
}
