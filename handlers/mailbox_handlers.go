package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"webmail/api"
	"webmail/database"
	"webmail/services"
)

const invalidEmailType = `Invalid email type specified. Use "sent" or "inbox".`

// pathID reads the {id} route variable.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		errorResponse(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// transition runs op on one item and reports its resulting flags.
func transition(w http.ResponseWriter, r *http.Request, logger *slog.Logger, mail *services.MailService, folder database.Folder, id int64, op services.Op, message string) {
	flags, err := mail.Transition(r.Context(), currentUserID(r), folder, id, op)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.FlagsResponse{Message: message, IsStarred: flags.Starred, IsTrashed: flags.Trashed})
}

// SaveDraftHandler upserts the compose form and returns the draft id.
func SaveDraftHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.SaveDraftRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		id, err := mail.SaveDraft(r.Context(), currentUserID(r), services.DraftInput{
			ID:              int64(req.ID),
			RecipientEmail:  req.RecipientEmail,
			Subject:         req.Subject,
			BodyHTML:        req.BodyHTML,
			AttachmentsInfo: api.AttachmentInfoList(req.AttachmentsInfo),
		})
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.SaveDraftResponse{Message: "Draft saved", DraftID: id})
	}
}

func ListDraftsHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		drafts, err := mail.ListDrafts(r.Context(), userID, mail.PageFor(r.Context(), userID, r.URL.Query()))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewDraftRows(drafts))
	}
}

func TrashDraftHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.DraftRef
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.DraftID == 0 {
			errorResponse(w, "draftId is required", http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, database.FolderDraft, int64(req.DraftID), services.OpTrash, "Draft moved to trash")
	}
}

func TrashEmailHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.TrashEmailRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		folder, err := database.ParseEmailFolder(req.EmailType)
		if err != nil {
			errorResponse(w, invalidEmailType, http.StatusBadRequest)
			return
		}
		if req.EmailID == 0 {
			errorResponse(w, "emailId is required", http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, folder, int64(req.EmailID), services.OpTrash, "Email moved to trash")
	}
}

func RestoreDraftHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.DraftRef
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.DraftID == 0 {
			errorResponse(w, "draftId is required", http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, database.FolderDraft, int64(req.DraftID), services.OpRestore, "Draft restored")
	}
}

// RestoreEmailHandler needs the original folder because inbox and sent
// emails live in different tables.
func RestoreEmailHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RestoreEmailRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		folder, err := database.ParseEmailFolder(req.OriginalFolder)
		if err != nil {
			errorResponse(w, `Invalid original folder. Use "sent" or "inbox".`, http.StatusBadRequest)
			return
		}
		if req.EmailID == 0 {
			errorResponse(w, "emailId is required", http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, folder, int64(req.EmailID), services.OpRestore, "Email restored")
	}
}

func DeleteDraftHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		transition(w, r, logger, mail, database.FolderDraft, id, services.OpDelete, "Draft permanently deleted")
	}
}

// DeleteEmailHandler serves DELETE /api/trash/emails/{id}?type=sent|inbox.
func DeleteEmailHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		folder, err := database.ParseEmailFolder(r.URL.Query().Get("type"))
		if err != nil {
			errorResponse(w, invalidEmailType, http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, folder, id, services.OpDelete, "Email permanently deleted")
	}
}

func ListTrashHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		items, err := mail.ListTrash(r.Context(), userID, mail.PageFor(r.Context(), userID, r.URL.Query()))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewFolderItems(items))
	}
}

func ListStarredHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		items, err := mail.ListStarred(r.Context(), userID, mail.PageFor(r.Context(), userID, r.URL.Query()))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewFolderItems(items))
	}
}

func StarDraftHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.StarDraftRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.DraftID == 0 {
			errorResponse(w, "draftId is required", http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, database.FolderDraft, int64(req.DraftID), services.StarOp(req.IsStarred), "Draft starred status updated")
	}
}

func StarEmailHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.StarEmailRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		folder, err := database.ParseEmailFolder(req.EmailType)
		if err != nil {
			errorResponse(w, invalidEmailType, http.StatusBadRequest)
			return
		}
		if req.EmailID == 0 {
			errorResponse(w, "emailId is required", http.StatusBadRequest)
			return
		}
		transition(w, r, logger, mail, folder, int64(req.EmailID), services.StarOp(req.IsStarred), "Email starred status updated")
	}
}

func ListScheduledHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		rows, err := mail.ListScheduled(r.Context(), userID, mail.PageFor(r.Context(), userID, r.URL.Query()))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewScheduledRows(rows))
	}
}

func CancelScheduledHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := mail.CancelScheduled(r.Context(), currentUserID(r), id); err != nil {
			writeError(w, r, logger, err)
			return
		}
		successResponse(w, "Scheduled email cancelled")
	}
}
