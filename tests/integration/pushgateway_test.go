//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

type pushMessage struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// pushRecorder is a fake push gateway that accepts every message.
type pushRecorder struct {
	server *httptest.Server

	mu       sync.Mutex
	messages []pushMessage
}

func newPushRecorder() *pushRecorder {
	p := &pushRecorder{}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *pushRecorder) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer push-test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var msg pushMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if msg.Token == "unregistered-device" {
		w.WriteHeader(http.StatusGone)
		return
	}

	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

// URL returns the gateway endpoint.
func (p *pushRecorder) URL() string {
	return p.server.URL + "/v1/push"
}

// For returns the messages delivered to a device token.
func (p *pushRecorder) For(deviceToken string) []pushMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []pushMessage
	for _, m := range p.messages {
		if m.Token == deviceToken {
			out = append(out, m)
		}
	}
	return out
}

func (p *pushRecorder) Close() {
	p.server.Close()
}
