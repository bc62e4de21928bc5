package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"webmail/auth"
	"webmail/services"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is what the router needs to build every handler.
type Deps struct {
	Accounts   *services.AccountService
	Mail       *services.MailService
	Tokens     *auth.Manager
	DB         Pinger
	UploadDir  string
	CORSOrigin string
	Logger     *slog.Logger
}

// NewRouter wires every route. Auth routes sit at the root, the rest of the
// API under /api behind RequireAuth, and the relay's webhook is public.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	r.HandleFunc("/healthz", healthHandler(d.DB)).Methods(http.MethodGet)

	r.HandleFunc("/register", RegisterHandler(d.Accounts, logger)).Methods(http.MethodPost)
	r.HandleFunc("/login", LoginHandler(d.Accounts, logger)).Methods(http.MethodPost)
	r.Handle("/change-password", RequireAuth(d.Tokens)(ChangePasswordHandler(d.Accounts, logger))).Methods(http.MethodPost)

	// Postal is configured with either path.
	webhook := InboundWebhookHandler(d.Mail, logger)
	r.HandleFunc("/webhooks/postal/inbound", webhook).Methods(http.MethodPost)
	r.HandleFunc("/api/webhooks/postal/inbound", webhook).Methods(http.MethodPost)

	if d.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir)))).Methods(http.MethodGet)
	}

	a := r.PathPrefix("/api").Subrouter()
	a.NotFoundHandler = r.NotFoundHandler
	a.Use(RequireAuth(d.Tokens))

	a.HandleFunc("/send-email", SendMailHandler(d.Mail, logger)).Methods(http.MethodPost)
	a.HandleFunc("/emails", ListEmailsHandler(d.Mail, logger)).Methods(http.MethodGet)
	a.HandleFunc("/limit", GetDailyLimitHandler(d.Mail, logger)).Methods(http.MethodGet)

	a.HandleFunc("/drafts", SaveDraftHandler(d.Mail, logger)).Methods(http.MethodPost)
	a.HandleFunc("/drafts", ListDraftsHandler(d.Mail, logger)).Methods(http.MethodGet)

	a.HandleFunc("/trash", ListTrashHandler(d.Mail, logger)).Methods(http.MethodGet)
	a.HandleFunc("/trash/draft", TrashDraftHandler(d.Mail, logger)).Methods(http.MethodPost)
	a.HandleFunc("/trash/email", TrashEmailHandler(d.Mail, logger)).Methods(http.MethodPost)
	a.HandleFunc("/trash/restore/draft", RestoreDraftHandler(d.Mail, logger)).Methods(http.MethodPost)
	a.HandleFunc("/trash/restore/email", RestoreEmailHandler(d.Mail, logger)).Methods(http.MethodPost)
	a.HandleFunc("/trash/drafts/{id}", DeleteDraftHandler(d.Mail, logger)).Methods(http.MethodDelete)
	a.HandleFunc("/trash/emails/{id}", DeleteEmailHandler(d.Mail, logger)).Methods(http.MethodDelete)

	a.HandleFunc("/starred", ListStarredHandler(d.Mail, logger)).Methods(http.MethodGet)
	a.HandleFunc("/starred/draft", StarDraftHandler(d.Mail, logger)).Methods(http.MethodPatch)
	a.HandleFunc("/starred/email", StarEmailHandler(d.Mail, logger)).Methods(http.MethodPatch)

	a.HandleFunc("/scheduled", ListScheduledHandler(d.Mail, logger)).Methods(http.MethodGet)
	a.HandleFunc("/scheduled/{id}", CancelScheduledHandler(d.Mail, logger)).Methods(http.MethodDelete)

	a.HandleFunc("/settings/general", GetSettingsHandler(d.Accounts, logger)).Methods(http.MethodGet)
	a.HandleFunc("/settings/general", UpdateSettingsHandler(d.Accounts, logger)).Methods(http.MethodPatch)
	a.HandleFunc("/settings/upload-profile-picture", UploadProfilePictureHandler(d.Accounts, logger)).Methods(http.MethodPost)

	a.HandleFunc("/signatures", ListSignaturesHandler(d.Accounts, logger)).Methods(http.MethodGet)
	a.HandleFunc("/signatures", CreateSignatureHandler(d.Accounts, logger)).Methods(http.MethodPost)
	a.HandleFunc("/signatures/{id}", UpdateSignatureHandler(d.Accounts, logger)).Methods(http.MethodPatch)
	a.HandleFunc("/signatures/{id}", DeleteSignatureHandler(d.Accounts, logger)).Methods(http.MethodDelete)

	// Outside the router so preflight requests and unmatched routes are
	// covered too.
	return recoverer(logger)(Logging(logger)(CORS(d.CORSOrigin)(r)))
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				errorResponse(w, "Database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		successResponse(w, "ok")
	}
}
