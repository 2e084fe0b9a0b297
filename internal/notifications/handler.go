package notifications

import (
	"net/http"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrPreferenceNotFound, Status: http.StatusNotFound, Message: "notification preference not found"},
	{Error: ErrChannelDisabled, Status: http.StatusBadRequest, Message: "channel type is not available"},
	{Error: ErrPreferenceDisabled, Status: http.StatusConflict, Message: "notifications are disabled for this channel"},
	{Error: ErrNoTarget, Status: http.StatusBadRequest, Message: "no delivery target configured for channel"},
	{Error: ErrInvalidTarget, Status: http.StatusBadRequest},
	{Error: ErrDeliveryFailed, Status: http.StatusBadGateway, Message: "failed to deliver test notification"},
	{Error: domain.ErrInvalidChannel, Status: http.StatusBadRequest, Message: "invalid notification channel"},
	{Error: domain.ErrInvalidDaysInAdvance, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/me/notification-preferences", func(r chi.Router) {
		r.Get("/", h.ListPreferences)
		r.Put("/{channel}", h.UpsertPreference)
		r.Delete("/{channel}", h.DeletePreference)
		r.Post("/{channel}/test", h.SendTest)
	})

	r.Get("/me/notifications", h.ListNotifications)
}

// RegisterPublicRoutes registers routes available without auth.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/notifications/config", h.GetNotificationsConfig)
}

// PreferenceRequest represents request body for upserting a preference.
type PreferenceRequest struct {
	Enabled       *bool  `json:"enabled" validate:"required"`
	DaysInAdvance int    `json:"days_in_advance" validate:"omitempty,min=1,max=30"`
	Target        string `json:"target" validate:"max=320"`
}

// ListPreferences handles GET /me/notification-preferences.
func (h *Handler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	prefs, err := h.service.ListPreferences(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, prefs)
}

// UpsertPreference handles PUT /me/notification-preferences/{channel}.
func (h *Handler) UpsertPreference(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	channel := domain.ChannelType(chi.URLParam(r, "channel"))

	var req PreferenceRequest
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	pref, err := h.service.UpsertPreference(r.Context(), userID, domain.NotificationPreference{
		Channel:       channel,
		DaysInAdvance: req.DaysInAdvance,
		Enabled:       *req.Enabled,
		Target:        req.Target,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, pref)
}

// DeletePreference handles DELETE /me/notification-preferences/{channel}.
func (h *Handler) DeletePreference(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	channel := domain.ChannelType(chi.URLParam(r, "channel"))

	if err := h.service.DeletePreference(r.Context(), userID, channel); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendTest handles POST /me/notification-preferences/{channel}/test.
func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	channel := domain.ChannelType(chi.URLParam(r, "channel"))

	item, err := h.service.SendTest(r.Context(), userID, channel)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// ListNotifications handles GET /me/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	items, err := h.service.ListNotifications(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}

// GetNotificationsConfig handles GET /notifications/config.
func (h *Handler) GetNotificationsConfig(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.service.GetAvailableChannels())
}
