package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"webmail/api"
	"webmail/database"
	"webmail/services"
)

const (
	// maxSendSize bounds a compose submission including its attachments.
	maxSendSize = 25 << 20
	// maxWebhookSize bounds an inbound message pushed by the relay.
	maxWebhookSize = 30 << 20
)

func currentUserID(r *http.Request) int64 {
	return ClaimsFrom(r.Context()).UserID
}

// SendMailHandler accepts the compose form as multipart (with "attachments"
// files) or JSON, sends it from the caller's address and stores the sent
// copy. A future scheduledAt answers 202 with the scheduled row instead.
func SendMailHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSendSize)

		claims := ClaimsFrom(r.Context())
		req := services.SendRequest{UserID: claims.UserID, From: claims.Email}

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxSendSize); err != nil {
				rejectBody(w, err)
				return
			}
			defer r.MultipartForm.RemoveAll()

			req.To = r.FormValue("to")
			req.Subject = r.FormValue("subject")
			req.BodyHTML = r.FormValue("bodyHtml")
			if req.BodyHTML == "" {
				req.BodyHTML = r.FormValue("body")
			}
			req.ScheduledAt = r.FormValue("scheduledAt")
			id, err := parseFormID(r.FormValue("draftIdToClear"))
			if err != nil {
				errorResponse(w, "Invalid draftIdToClear", http.StatusBadRequest)
				return
			}
			req.DraftIDToClear = id

			atts, err := readAttachments(r.MultipartForm.File["attachments"])
			if err != nil {
				logger.Error("reading attachments", "request_id", RequestID(r.Context()), "error", err)
				errorResponse(w, "Failed to read attachments.", http.StatusBadRequest)
				return
			}
			req.Attachments = atts
		} else {
			var body api.SendEmailRequest
			if !decodeJSON(w, r, &body) {
				return
			}
			req.To = body.To
			req.Subject = body.Subject
			req.BodyHTML = body.BodyHTML
			if req.BodyHTML == "" {
				req.BodyHTML = body.Body
			}
			req.ScheduledAt = body.ScheduledAt
			req.DraftIDToClear = int64(body.DraftIDToClear)
		}

		res, err := mail.Send(r.Context(), req)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		if res.Scheduled != nil {
			row := api.NewScheduledRow(*res.Scheduled)
			respondWithJSON(w, http.StatusAccepted, api.SendEmailResponse{Message: "Email scheduled.", Scheduled: &row})
			return
		}
		row := api.NewEmailRow(*res.Sent)
		respondWithJSON(w, http.StatusOK, api.SendEmailResponse{
			Message:        "Email sent and stored!",
			PostalResponse: res.RelayResponse,
			Email:          &row,
		})
	}
}

func readAttachments(files []*multipart.FileHeader) ([]services.Attachment, error) {
	out := make([]services.Attachment, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		if contentType == "" {
			contentType = http.DetectContentType(content)
		}
		out = append(out, services.Attachment{Filename: fh.Filename, ContentType: contentType, Content: content})
	}
	return out, nil
}

// parseFormID reads an optional id from a form field. Browsers serialize a
// missing value as "", "null" or "undefined".
func parseFormID(v string) (int64, error) {
	switch v = strings.TrimSpace(v); v {
	case "", "null", "undefined":
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// rejectBody answers a request whose body could not be read.
func rejectBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		errorResponse(w, "Request body too large.", http.StatusRequestEntityTooLarge)
		return
	}
	errorResponse(w, "Invalid request payload", http.StatusBadRequest)
}

// ListEmailsHandler serves GET /api/emails?type=sent|inbox.
func ListEmailsHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		page := mail.PageFor(r.Context(), userID, r.URL.Query())
		emails, err := mail.ListEmails(r.Context(), userID, database.Folder(r.URL.Query().Get("type")), page)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.NewEmailRows(emails))
	}
}

// GetDailyLimitHandler reports the caller's usage of the daily send limit.
func GetDailyLimitHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		used, limit, err := mail.Quota(r.Context(), currentUserID(r))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, api.QuotaResponse{
			CurrentCount: used,
			Limit:        limit,
			Remaining:    max(limit-used, 0),
		})
	}
}

// InboundWebhookHandler stores mail pushed by the relay. Mail for unknown
// recipients is acknowledged with 200 and dropped so the relay does not retry.
func InboundWebhookHandler(mail *services.MailService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookSize))
		if err != nil {
			rejectBody(w, err)
			return
		}

		msg, err := services.ParseInbound(r.Header.Get("Content-Type"), body)
		if err != nil {
			logger.Warn("rejecting inbound webhook", "request_id", RequestID(r.Context()), "bytes", len(body), "error", err)
			errorResponse(w, "No message data found in webhook body.", http.StatusBadRequest)
			return
		}

		stored, err := mail.ReceiveInbound(r.Context(), msg)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if stored == nil {
			successResponse(w, "Recipient user not found, email not stored (expected behavior for unknown users).")
			return
		}
		successResponse(w, "Inbound email received and stored.")
	}
}
