package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"itflow/internal/metrics"
	"itflow/internal/model"
	"itflow/internal/mw"
)

type Tokens interface {
	TokenIssuer
	mw.AccessParser
}

type Auth interface {
	Authenticator
	Registrar
}

// Deps carries everything the HTTP API needs.
type Deps struct {
	Auth          Auth
	Tokens        Tokens
	Users         UserStore
	Orders        OrderStore
	History       HistoryStore
	Files         FileStore
	Contacts      ContactStore
	Mailer        OrderMailer
	Backups       BackupStore
	MaxUploadSize int64
	RetentionDays int
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Public routes
	r.Post("/api/token", LoginHandler(d.Auth, d.Tokens))
	r.Post("/api/token/refresh", RefreshHandler(d.Users, d.Tokens))
	r.Post("/api/accounts/users/register", RegisterHandler(d.Auth))
	r.Post("/api/notifications/contact", CreateContactHandler(d.Contacts))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(d.Tokens))
		managers := mw.RequireRole(model.RoleManager)

		r.Post("/api/token/logout", LogoutHandler(d.Tokens))

		r.Route("/api/accounts/users", func(r chi.Router) {
			r.Get("/me", MeHandler(d.Users))
			r.Put("/me", UpdateMeHandler(d.Users))
			r.Patch("/me", UpdateMeHandler(d.Users))
			r.Get("/dashboard", DashboardHandler(d.Users))
			r.With(managers).Get("/programmers", ProgrammersHandler(d.Users))
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", ListOrdersHandler(d.Orders))
			r.Post("/", CreateOrderHandler(d.Orders))
			r.Get("/{id}", GetOrderHandler(d.Orders))
			r.Get("/{id}/transitions", TransitionsHandler(d.Orders))
			r.Post("/{id}/change-status", ChangeStatusHandler(d.Orders))
			r.With(managers).Post("/{id}/assign-developer", AssignDeveloperHandler(d.Orders))
			r.Get("/{id}/files/download", DownloadFilesHandler(d.Files))
		})

		r.Route("/api/order-log/order-history/{orderID}", func(r chi.Router) {
			r.Get("/", HistoryHandler(d.History))
			r.Post("/comments", CommentHandler(d.History))
		})

		r.Route("/api/files", func(r chi.Router) {
			r.Post("/upload", UploadFileHandler(d.Files, d.MaxUploadSize))
			r.Get("/order/{id}", ListOrderFilesHandler(d.Files))
			r.Get("/order/{id}/final_report", FinalReportHandler(d.Files))
			r.Get("/{id}", GetFileHandler(d.Files))
			r.Delete("/{id}", DeleteFileHandler(d.Files))
			r.Get("/{id}/content", FileContentHandler(d.Files))
			r.Patch("/{id}/visibility", SetVisibilityHandler(d.Files))
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/contact/all", ListContactsHandler(d.Contacts))
			r.Get("/contact/mine", MyContactsHandler(d.Contacts))
			r.Get("/contact/stats", ContactStatsHandler(d.Contacts))
			r.Get("/contact/{id}", GetContactHandler(d.Contacts))
			r.Delete("/contact/{id}", DeleteContactHandler(d.Contacts))
			r.Post("/contact/{id}/respond", RespondContactHandler(d.Contacts))
			r.Post("/order/{orderID}/send-email", SendOrderEmailHandler(d.Mailer, d.MaxUploadSize))
		})

		r.Route("/api/backups", func(r chi.Router) {
			r.Use(managers)
			r.Get("/", ListBackupsHandler(d.Backups))
			r.Post("/", CreateBackupHandler(d.Backups))
			r.Get("/stats", BackupStatsHandler(d.Backups))
			r.Post("/cleanup", CleanupBackupsHandler(d.Backups, d.RetentionDays))
		})
	})

	return r
}
