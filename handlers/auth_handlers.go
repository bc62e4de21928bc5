package handlers

import (
	"log/slog"
	"net/http"

	"webmail/api"
	"webmail/services"
)

// RegisterHandler creates an account for an address in the configured domain.
func RegisterHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		_, err := accounts.Register(r.Context(), services.RegisterRequest{
			Name:            req.Name,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
		})
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, api.MessageResponse{Message: "User registered successfully!"})
	}
}

func LoginHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		token, _, err := accounts.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.LoginResponse{Message: "Login successful", AccessToken: token})
	}
}

func ChangePasswordHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.ChangePasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		claims := ClaimsFrom(r.Context())
		if err := accounts.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
			writeError(w, r, logger, err)
			return
		}
		successResponse(w, "Password changed successfully")
	}
}
