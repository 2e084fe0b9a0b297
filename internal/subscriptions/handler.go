package subscriptions

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bissquit/subtrack/internal/billing"
	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/export"
	"github.com/bissquit/subtrack/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxBodyBytes    = 1 << 20
	maxImportBytes  = 10 << 20
	maxUpcomingDays = 365
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSubscriptionNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
	{Error: ErrEmptyPatch, Status: http.StatusBadRequest},
	{Error: ErrEmptyImport, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidName, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidCategory, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidCycle, Status: http.StatusBadRequest},
	{Error: domain.ErrInvalidDate, Status: http.StatusBadRequest},
	{Error: domain.ErrNegativePrice, Status: http.StatusBadRequest},
	{Error: domain.ErrPricePrecision, Status: http.StatusBadRequest},
	{Error: domain.ErrPriceTooLarge, Status: http.StatusBadRequest},
	{Error: domain.ErrIncompleteCycleChange, Status: http.StatusBadRequest},
	{Error: billing.ErrInvalidCount, Status: http.StatusBadRequest, Message: "count must be between 1 and 24"},
	{Error: export.ErrUnsupportedFormat, Status: http.StatusBadRequest, Message: "format must be csv or json"},
}

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers subscription routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/categories", h.Categories)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/schedule", h.Schedule)
	})

	r.Get("/summary", h.Summary)
	r.Get("/upcoming", h.Upcoming)
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
}

// CreateRequest represents request body for creating a subscription.
type CreateRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Cycle       string           `json:"cycle" validate:"required,oneof=weekly monthly quarterly yearly"`
	Category    string           `json:"category" validate:"required,max=100"`
	PaymentDate domain.Date      `json:"payment_date"`
	Notes       *string          `json:"notes" validate:"omitempty,max=2000"`
	Logo        *string          `json:"logo" validate:"omitempty,max=2048"`
}

// UpdateRequest represents request body for a partial update. An empty notes or
// logo value clears the field.
type UpdateRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Price       *decimal.Decimal `json:"price"`
	Cycle       *string          `json:"cycle" validate:"omitempty,oneof=weekly monthly quarterly yearly"`
	Category    *string          `json:"category" validate:"omitempty,min=1,max=100"`
	PaymentDate *domain.Date     `json:"payment_date"`
	Notes       *string          `json:"notes" validate:"omitempty,max=2000"`
	Logo        *string          `json:"logo" validate:"omitempty,max=2048"`
}

func (req UpdateRequest) patch() domain.SubscriptionPatch {
	p := domain.SubscriptionPatch{
		Name:        req.Name,
		Price:       req.Price,
		Category:    req.Category,
		PaymentDate: req.PaymentDate,
		Notes:       req.Notes,
		Logo:        req.Logo,
	}
	if req.Cycle != nil {
		c := domain.Cycle(*req.Cycle)
		p.Cycle = &c
	}
	return p
}

// List handles GET /subscriptions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	views, err := h.service.List(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, views)
}

// Create handles POST /subscriptions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	var req CreateRequest
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		if errors.Is(err, domain.ErrInvalidDate) {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sub, err := h.service.Create(r.Context(), userID, domain.Subscription{
		Name:        req.Name,
		Price:       *req.Price,
		Cycle:       domain.Cycle(req.Cycle),
		Category:    req.Category,
		PaymentDate: req.PaymentDate,
		Notes:       req.Notes,
		Logo:        req.Logo,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sub)
}

// Get handles GET /subscriptions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.View(r.Context(), userID, id, billing.DefaultPreviewCount)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, view)
}

// Update handles PATCH /subscriptions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		if errors.Is(err, domain.ErrInvalidDate) {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sub, err := h.service.Update(r.Context(), userID, id, req.patch())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Delete handles DELETE /subscriptions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Schedule handles GET /subscriptions/{id}/schedule.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	count, err := intQuery(r, "count", billing.DefaultPreviewCount)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "count must be an integer")
		return
	}

	dates, err := h.service.Schedule(r.Context(), userID, id, count)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, dates)
}

// Categories handles GET /subscriptions/categories.
func (h *Handler) Categories(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, domain.SuggestedCategories)
}

// Summary handles GET /summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	summary, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}

// Upcoming handles GET /upcoming.
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	days, err := intQuery(r, "days", billing.DefaultUpcomingWindow)
	if err != nil || days < 1 || days > maxUpcomingDays {
		httputil.Error(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	report, err := h.service.Upcoming(r.Context(), userID, days)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, report)
}

// Export handles GET /export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	artifact, err := h.service.Export(r.Context(), userID, format)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Download(w, artifact.MediaType, artifact.Filename, artifact.Data)
}

// Import handles POST /import.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "import file too large")
		return
	}

	subs, err := export.DecodeJSON(data)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDate) {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.Error(w, http.StatusBadRequest, "invalid json export")
		return
	}

	created, err := h.service.Import(r.Context(), userID, subs)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, created)
}

// subscriptionID reads the {id} path parameter. Malformed ids cannot exist and
// are reported as not found.
func subscriptionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		httputil.Error(w, http.StatusNotFound, "subscription not found")
		return "", false
	}
	return id, true
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
