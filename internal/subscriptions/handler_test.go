package subscriptions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := httputil.WithPrincipal(req.Context(), domain.Principal{UserID: userID})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestHandler_CreateAndGet(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, "user-1")

	rec := doRequest(router, http.MethodPost, "/subscriptions",
		`{"name":"Netflix","price":"15.49","cycle":"monthly","category":"Entertainment","payment_date":"2024-01-31"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Subscription
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &created))
	assert.Equal(t, "user-1", created.OwnerID)
	assert.Equal(t, "15.49", created.Price.String())

	rec = doRequest(router, http.MethodGet, "/subscriptions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		ID                string   `json:"id"`
		MonthlyEquivalent string   `json:"monthly_equivalent"`
		Schedule          []string `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, "15.49", view.MonthlyEquivalent)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"}, view.Schedule)
}

func TestHandler_Create_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, "user-1")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing price", `{"name":"x","cycle":"monthly","category":"Other","payment_date":"2024-01-01"}`},
		{"unknown cycle", `{"name":"x","price":"1","cycle":"daily","category":"Other","payment_date":"2024-01-01"}`},
		{"bad date", `{"name":"x","price":"1","cycle":"monthly","category":"Other","payment_date":"31/01/2024"}`},
		{"missing date", `{"name":"x","price":"1","cycle":"monthly","category":"Other"}`},
		{"negative price", `{"name":"x","price":"-1","cycle":"monthly","category":"Other","payment_date":"2024-01-01"}`},
		{"sub-cent price", `{"name":"x","price":9.999,"cycle":"monthly","category":"Other","payment_date":"2024-01-01"}`},
		{"price overflow", `{"name":"x","price":"10000000000","cycle":"monthly","category":"Other","payment_date":"2024-01-01"}`},
		{"missing name", `{"price":"1","cycle":"monthly","category":"Other","payment_date":"2024-01-01"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/subscriptions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotNil(t, decodeEnvelope(t, rec).Error)
		})
	}
}

func TestHandler_OwnerScoping(t *testing.T) {
	svc, _, _ := newTestService()
	created := mustCreate(t, svc, "owner", newSub("Netflix", "15.49", domain.CycleMonthly, domain.NewDate(2024, time.June, 15)))
	stranger := newTestRouter(svc, "stranger")

	rec := doRequest(stranger, http.MethodGet, "/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(stranger, http.MethodPatch, "/subscriptions/"+created.ID, `{"name":"mine"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(stranger, http.MethodDelete, "/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(stranger, http.MethodGet, "/subscriptions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "subscription not found", decodeEnvelope(t, rec).Error.Message)

	owned := doRequest(newTestRouter(svc, "owner"), http.MethodGet, "/subscriptions/"+created.ID, "")
	require.Equal(t, http.StatusOK, owned.Code)
	assert.Contains(t, owned.Body.String(), `"name":"Netflix"`)

	rec = doRequest(stranger, http.MethodGet, "/subscriptions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decodeEnvelope(t, rec).Data))
}

func TestHandler_InvalidID(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, "user-1")

	rec := doRequest(router, http.MethodGet, "/subscriptions/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/subscriptions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	svc, _, _ := newTestService()
	created := mustCreate(t, svc, "user-1", newSub("Netflix", "15.49", domain.CycleMonthly, domain.NewDate(2024, time.June, 15)))
	router := newTestRouter(svc, "user-1")

	rec := doRequest(router, http.MethodPatch, "/subscriptions/"+created.ID, `{"price":"17.99"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Subscription
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &updated))
	assert.Equal(t, "17.99", updated.Price.String())
	assert.Equal(t, "Netflix", updated.Name)

	rec = doRequest(router, http.MethodPatch, "/subscriptions/"+created.ID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPatch, "/subscriptions/"+created.ID, `{"cycle":"yearly"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodDelete, "/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, http.MethodGet, "/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Schedule(t *testing.T) {
	svc, _, _ := newTestService()
	created := mustCreate(t, svc, "user-1", newSub("Annual", "100", domain.CycleYearly, domain.NewDate(2024, time.February, 29)))
	router := newTestRouter(svc, "user-1")

	rec := doRequest(router, http.MethodGet, "/subscriptions/"+created.ID+"/schedule?count=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["2024-02-29","2025-02-28"]`, string(decodeEnvelope(t, rec).Data))

	for _, q := range []string{"count=0", "count=25", "count=abc"} {
		rec := doRequest(router, http.MethodGet, "/subscriptions/"+created.ID+"/schedule?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandler_Categories(t *testing.T) {
	svc, _, _ := newTestService()
	rec := doRequest(newTestRouter(svc, "user-1"), http.MethodGet, "/subscriptions/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var categories []string
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &categories))
	assert.Equal(t, domain.SuggestedCategories, categories)
}

func TestHandler_Summary(t *testing.T) {
	svc, _, _ := newTestService()
	mustCreate(t, svc, "user-1", newSub("Annual", "12", domain.CycleYearly, domain.NewDate(2024, time.June, 12)))
	mustCreate(t, svc, "user-1", newSub("Monthly", "9.99", domain.CycleMonthly, domain.NewDate(2024, time.July, 1)))

	rec := doRequest(newTestRouter(svc, "user-1"), http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		TotalMonthlySpend string `json:"total_monthly_spend"`
		SubscriptionCount int    `json:"subscription_count"`
		UpcomingCount     int    `json:"upcoming_count"`
		Categories        []struct {
			Category string `json:"category"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &summary))
	assert.Equal(t, "10.99", summary.TotalMonthlySpend)
	assert.Equal(t, 2, summary.SubscriptionCount)
	assert.Equal(t, 1, summary.UpcomingCount)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, "Entertainment", summary.Categories[0].Category)
}

func TestHandler_Upcoming_DaysBounds(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, "user-1")

	for _, q := range []string{"days=0", "days=366", "days=x"} {
		rec := doRequest(router, http.MethodGet, "/upcoming?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec := doRequest(router, http.MethodGet, "/upcoming", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Export(t *testing.T) {
	svc, _, _ := newTestService()
	mustCreate(t, svc, "user-1", newSub("Netflix", "15.49", domain.CycleMonthly, domain.NewDate(2024, time.June, 15)))
	router := newTestRouter(svc, "user-1")

	rec := doRequest(router, http.MethodGet, "/export?format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="subscriptions_2024-06-10.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Name,Price,Cycle,Category,Payment Date,Notes,Created At\n"))

	rec = doRequest(router, http.MethodGet, "/export?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = doRequest(router, http.MethodGet, "/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Import(t *testing.T) {
	svc, repo, _ := newTestService()
	router := newTestRouter(svc, "user-1")

	body := `[{"id":"old","name":"Spotify","price":"9.99","cycle":"monthly","category":"Entertainment",` +
		`"payment_date":"2024-06-20","owner_id":"someone","created_at":"2023-01-01T00:00:00Z"}]`

	rec := doRequest(router, http.MethodPost, "/import", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, repo.subs, 1)
	for _, sub := range repo.subs {
		assert.Equal(t, "user-1", sub.OwnerID)
		assert.NotEqual(t, "old", sub.ID)
	}

	rec = doRequest(router, http.MethodPost, "/import", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
