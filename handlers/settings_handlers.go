package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"webmail/api"
	"webmail/services"
)

func GetSettingsHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, sigs, err := accounts.Settings(r.Context(), currentUserID(r))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewSettings(st, sigs))
	}
}

// UpdateSettingsHandler applies a partial update and answers with the full
// settings object.
func UpdateSettingsHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.SettingsPatch
		if !decodeJSON(w, r, &req) {
			return
		}
		userID := currentUserID(r)
		if _, err := accounts.UpdateSettings(r.Context(), userID, req.Patch()); err != nil {
			writeError(w, r, logger, err)
			return
		}
		st, sigs, err := accounts.Settings(r.Context(), userID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.SettingsResponse{
			Message:  "Settings updated successfully",
			Settings: api.NewSettings(st, sigs),
		})
	}
}

// UploadProfilePictureHandler takes the multipart field "profilePicture".
func UploadProfilePictureHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, services.MaxProfilePictureSize+1<<20)
		if err := r.ParseMultipartForm(services.MaxProfilePictureSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				errorResponse(w, "Profile picture must be 5 MB or smaller.", http.StatusBadRequest)
				return
			}
			errorResponse(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("profilePicture")
		if err != nil {
			errorResponse(w, "No file uploaded.", http.StatusBadRequest)
			return
		}
		defer file.Close()

		url, err := accounts.SaveProfilePicture(r.Context(), currentUserID(r), header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.UploadResponse{
			Message:           "Profile picture uploaded successfully",
			ProfilePictureURL: url,
		})
	}
}

func ListSignaturesHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sigs, err := accounts.ListSignatures(r.Context(), currentUserID(r))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewSignatures(sigs))
	}
}

func CreateSignatureHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.SignatureRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sig, err := accounts.CreateSignature(r.Context(), currentUserID(r), req.Name, req.Content)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, api.NewSignature(*sig))
	}
}

func UpdateSignatureHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req api.SignatureRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sig, err := accounts.UpdateSignature(r.Context(), currentUserID(r), id, req.Name, req.Content)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewSignature(*sig))
	}
}

func DeleteSignatureHandler(accounts *services.AccountService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := accounts.DeleteSignature(r.Context(), currentUserID(r), id); err != nil {
			writeError(w, r, logger, err)
			return
		}
		successResponse(w, "Signature deleted")
	}
}
