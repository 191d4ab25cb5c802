package handlers

import (
	"concord-backend/internal/config"
	"concord-backend/internal/hierarchy"
	"concord-backend/internal/jwt"
	"concord-backend/internal/keyValue"
	"concord-backend/internal/membership"
	"concord-backend/internal/messages"
	"concord-backend/internal/users"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	govalidator "github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Handler struct {
	sugar     *zap.SugaredLogger
	cfg       *config.ConfigFile
	validate  *govalidator.Validate
	jwt       *jwt.Issuer
	kv        *keyValue.Store
	users     *users.Service
	servers   *membership.Coordinator
	hierarchy *hierarchy.Service
	messages  *messages.Log
}

type Services struct {
	Users      *users.Service
	Membership *membership.Coordinator
	Hierarchy  *hierarchy.Service
	Messages   *messages.Log
}

func New(sugar *zap.SugaredLogger, cfg *config.ConfigFile, validate *govalidator.Validate, issuer *jwt.Issuer, kv *keyValue.Store, services Services) *Handler {
	return &Handler{
		sugar:     sugar,
		cfg:       cfg,
		validate:  validate,
		jwt:       issuer,
		kv:        kv,
		users:     services.Users,
		servers:   services.Membership,
		hierarchy: services.Hierarchy,
		messages:  services.Messages,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if h.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", h.Health)

		api.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.With(h.UserVerifier).Post("/logout", h.Logout)
			r.With(h.UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/user", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/self", h.GetSelf)
		})

		api.Route("/servers", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/previews", h.ServerPreviews)
			r.Post("/", h.CreateServer)
			r.Post("/invite", h.InviteToServer)
			r.Post("/add-owner", h.AddOwner)
			r.Post("/remove-owner", h.RemoveOwner)

			r.Route("/{serverID}", func(r chi.Router) {
				r.Get("/", h.GetServer)
				r.Patch("/", h.UpdateServer)
				r.Delete("/", h.DeleteServer)
				r.Post("/join", h.JoinServer)
				r.Post("/leave", h.LeaveServer)
				r.Post("/refuse", h.RefuseInvite)

				r.Get("/hierarchy", h.GetHierarchy)
				r.Post("/groups", h.CreateGroup)
				r.Patch("/groups/{groupID}", h.UpdateGroup)
				r.Delete("/groups/{groupID}", h.DeleteGroup)
				r.Post("/channels", h.CreateChannel)
				r.Patch("/groups/{groupID}/channels/{channelID}", h.UpdateChannel)
				r.Delete("/groups/{groupID}/channels/{channelID}", h.DeleteChannel)

				r.Post("/messages", h.PostMessage)
				r.Get("/channels/{channelID}/messages", h.GetMessages)
			})
		})
	})

	if !h.cfg.BehindNginx {
		r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir("./public"))))
	}

	if h.cfg.Cors {
		return cors.New(cors.Options{
			AllowedOrigins:   h.cfg.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}).Handler(r)
	}
	return r
}

func (h *Handler) NewServer() *http.Server {
	return &http.Server{
		Addr:              h.cfg.Address + ":" + h.cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve blocks until the server fails or is shut down. A shutdown through
// server.Shutdown returns nil.
func (h *Handler) Serve(server *http.Server) error {
	var err error
	if h.cfg.IsHttps() {
		err = server.ListenAndServeTLS(h.cfg.TlsCert, h.cfg.TlsKey)
	} else {
		err = server.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
