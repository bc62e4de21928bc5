package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"webmail/api"
	"webmail/services"
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("error marshalling JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(response)
}

// errorResponse sends a {message} body with the given status
func errorResponse(w http.ResponseWriter, message string, statusCode int) {
	respondWithJSON(w, statusCode, api.MessageResponse{Message: message})
}

// successResponse sends a 200 {message} body
func successResponse(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusOK, api.MessageResponse{Message: message})
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation, services.KindAuth:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUnreachable:
		return http.StatusBadGateway
	case services.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError maps a service error onto its HTTP status and a
// {message[, error]} body. Errors that are not *services.Error never leak
// their text to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logger.Error("unhandled error", "method", r.Method, "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		errorResponse(w, "Something went wrong!", http.StatusInternalServerError)
		return
	}

	status := statusFor(svcErr.Kind)
	attrs := []any{"method", r.Method, "path", r.URL.Path, "request_id", RequestID(r.Context()), "kind", svcErr.Kind.String(), "error", err}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}
	respondWithJSON(w, status, api.MessageResponse{Message: svcErr.Message, Error: svcErr.Detail})
}

// decodeJSON reads the request body into dst, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		errorResponse(w, "Invalid request payload", http.StatusBadRequest)
		return false
	}
	return true
}
