package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bissquit/subtrack/api/openapi"
	"github.com/bissquit/subtrack/internal/identity"
	identitypostgres "github.com/bissquit/subtrack/internal/identity/postgres"
	"github.com/bissquit/subtrack/internal/identity/token"
	"github.com/bissquit/subtrack/internal/notifications"
	notificationspostgres "github.com/bissquit/subtrack/internal/notifications/postgres"
	"github.com/bissquit/subtrack/internal/pkg/broker"
	"github.com/bissquit/subtrack/internal/pkg/ctxlog"
	"github.com/bissquit/subtrack/internal/pkg/httputil"
	"github.com/bissquit/subtrack/internal/subscriptions"
	subscriptionspostgres "github.com/bissquit/subtrack/internal/subscriptions/postgres"
	"github.com/bissquit/subtrack/internal/version"
)

const requestTimeout = 60 * time.Second

const docsPage = `<!DOCTYPE html>
<html>
<head>
  <title>Subtrack API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>SwaggerUIBundle({url: "/api/openapi.yaml", dom_id: "#swagger-ui"});</script>
</body>
</html>`

func (a *App) routes(ctx context.Context) (http.Handler, error) {
	r := chi.NewRouter()

	// Outermost so the duration covers every other middleware.
	r.Use(httputil.MetricsMiddleware)
	if origins := a.config.Server.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.Text(w, http.StatusOK, "OK")
	})
	r.Get("/readyz", a.ready)
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, version.Get())
	})
	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Document)
	})
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(docsPage))
	})

	authenticator, err := token.NewAuthenticator(token.Config{
		Secret:   a.config.Auth.JWTSecret,
		Issuer:   a.config.Auth.Issuer,
		Audience: a.config.Auth.Audience,
		Leeway:   a.config.Auth.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	users := identitypostgres.NewRepository(a.db)
	identityService := identity.NewService(users)

	// A nil interface keeps the service from publishing when the broker is off.
	var events subscriptions.EventPublisher
	if a.config.Broker.Enabled {
		a.publisher, err = broker.NewPublisher(a.config.Broker.URL, a.config.Broker.Exchange)
		if err != nil {
			return nil, fmt.Errorf("create broker publisher: %w", err)
		}
		events = a.publisher
	}

	subs := subscriptionspostgres.NewRepository(a.db)
	subscriptionsHandler := subscriptions.NewHandler(subscriptions.NewService(subs, events))

	notificationsService, err := a.buildNotifications(ctx, notificationspostgres.NewRepository(a.db), subs, users)
	if err != nil {
		return nil, err
	}
	notificationsHandler := notifications.NewHandler(notificationsService)

	r.Route("/api/v1", func(r chi.Router) {
		notificationsHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authenticator, identityService.EnsureUser))

			identity.NewHandler(identityService).RegisterProtectedRoutes(r)
			subscriptionsHandler.RegisterRoutes(r)
			notificationsHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}
