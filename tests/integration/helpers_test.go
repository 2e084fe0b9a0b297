//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID     string
	Email  string
	Client *testutil.Client
}

// newTestUser returns a validating client authenticated as a fresh user.
func newTestUser(t *testing.T) *testUser {
	t.Helper()

	id := "user-" + uuid.NewString()
	email := strings.ToLower(id) + "@example.com"

	signed, err := testTokens.Issue(domain.Principal{
		UserID:      id,
		Email:       email,
		DisplayName: "Test User",
	}, time.Hour)
	require.NoError(t, err)

	client := newTestClient(t)
	client.SetToken(signed)

	return &testUser{ID: id, Email: email, Client: client}
}

type subscriptionResponse struct {
	Data struct {
		ID                string   `json:"id"`
		Name              string   `json:"name"`
		Price             string   `json:"price"`
		Cycle             string   `json:"cycle"`
		Category          string   `json:"category"`
		PaymentDate       *string  `json:"payment_date"`
		Notes             *string  `json:"notes"`
		OwnerID           string   `json:"owner_id"`
		MonthlyEquivalent string   `json:"monthly_equivalent"`
		Schedule          []string `json:"schedule"`
	} `json:"data"`
}

// createSubscription creates a subscription and returns its id.
func createSubscription(t *testing.T, client *testutil.Client, payload map[string]any) string {
	t.Helper()

	body := map[string]any{
		"name":         "Netflix",
		"price":        "15.49",
		"cycle":        "monthly",
		"category":     "Entertainment",
		"payment_date": today().String(),
	}
	for k, v := range payload {
		body[k] = v
	}

	resp, err := client.POST("/api/v1/subscriptions", body)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create subscription: status=%d body=%s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var result subscriptionResponse
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data.ID
}

func today() domain.Date {
	return domain.DateOf(time.Now().UTC())
}
