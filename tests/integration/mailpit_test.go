//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads the Mailpit REST API.
type MailpitClient struct {
	base string
	http *http.Client
}

// NewMailpitClient creates a client for the API at host:port.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		base: fmt.Sprintf("http://%s:%d/api/v1", host, port),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitAddress is a parsed mailbox.
type MailpitAddress struct {
	Name    string `json:"Name"`
	Address string `json:"Address"`
}

// MailpitMessage is a stored message. Text is only set by GetMessageByID.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Cc      []MailpitAddress `json:"Cc"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
}

// AllRecipients returns To followed by Cc.
func (m *MailpitMessage) AllRecipients() []MailpitAddress {
	return append(append([]MailpitAddress{}, m.To...), m.Cc...)
}

func (c *MailpitClient) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchByRecipient lists messages addressed to email, newest first.
func (c *MailpitClient) SearchByRecipient(email string) ([]MailpitMessage, error) {
	var page struct {
		Messages []MailpitMessage `json:"messages"`
	}
	if err := c.get("/search?query="+url.QueryEscape("to:"+email), &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// GetMessageByID returns one message including its plain text body.
func (c *MailpitClient) GetMessageByID(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.get("/message/"+url.PathEscape(id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
