package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

var registerCSV sync.Once

// unvalidated lists paths outside the OpenAPI document.
var unvalidated = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/version": true,
}

// OpenAPIValidator checks responses against an OpenAPI document.
type OpenAPIValidator struct {
	router routers.Router
}

// LoadOpenAPIValidator loads and validates the document at path.
func LoadOpenAPIValidator(path string) (*OpenAPIValidator, error) {
	registerCSV.Do(func() {
		openapi3filter.RegisterBodyDecoder("text/csv", openapi3filter.FileBodyDecoder)
	})

	doc, err := openapi3.NewLoader().LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

// ValidateResponse reports a test error when resp does not match the
// documented response for req. The body is restored for the caller.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if unvalidated[req.URL.Path] {
		return
	}

	// Server URLs in the document are relative, so match on the path alone.
	u := *req.URL
	u.Scheme, u.Host, u.User = "", "", nil
	lookup := &http.Request{Method: req.Method, URL: &u, Header: req.Header}
	route, params, err := v.router.FindRoute(lookup)
	if err != nil {
		t.Errorf("openapi: %s %s is not documented: %v", req.Method, req.URL.Path, err)
		return
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}

	err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    lookup,
			PathParams: params,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	})
	if err != nil {
		t.Errorf("openapi: %s %s returned an undocumented %d response:\n%s\nbody: %s",
			req.Method, req.URL.Path, resp.StatusCode, clip(err.Error(), 600), clip(string(body), 300))
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
