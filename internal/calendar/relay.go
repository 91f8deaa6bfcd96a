package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// RelayFailureAnswer is shown when the Q&A relay cannot answer.
const RelayFailureAnswer = "⚠️ Server error. Please try again."

// Summary is the end-of-session transcript for a captured lead.
type Summary struct {
	Account Account
	Name    string
	Email   string
	ChatLog string
}

// Turn is one (visitor, bot) exchange forwarded as relay context.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// BookingHint carries the visitor's in-progress booking details to the relay.
type BookingHint struct {
	InProgress bool   `json:"inProgress"`
	Date       string `json:"date,omitempty"`
	Time       string `json:"time,omitempty"`
}

// Question is a non-booking visitor message sent to the Q&A relay.
type Question struct {
	Account Account
	Text    string
	History []Turn
	Booking BookingHint
}

// SendSummary posts the session transcript. Errors are returned for logging
// only; callers never surface them to the visitor.
func (c *Client) SendSummary(ctx context.Context, s Summary) error {
	ctx, span := tracer.Start(ctx, "calendar.summary")
	defer span.End()
	span.SetAttributes(attribute.String("widget.client_id", s.Account.ClientID))

	if strings.TrimSpace(s.ChatLog) == "" {
		return errors.New("calendar: empty chat log")
	}
	payload := map[string]string{
		"name":      s.Name,
		"email":     s.Email,
		"chat_log":  s.ChatLog,
		"token":     s.Account.Token,
		"client_id": s.Account.ClientID,
	}
	resp, err := c.do(ctx, "summary", http.MethodPost, "/summary", payload)
	if err != nil {
		return fmt.Errorf("calendar: send summary: %w", err)
	}
	if !resp.ok() {
		return fmt.Errorf("calendar: summary returned %d: %s", resp.status, truncate(string(resp.body), 300))
	}
	return nil
}

// Ask relays a free-form question and returns the answer text. Failures
// produce RelayFailureAnswer.
func (c *Client) Ask(ctx context.Context, q Question) string {
	ctx, span := tracer.Start(ctx, "calendar.chat")
	defer span.End()
	span.SetAttributes(attribute.String("widget.client_id", q.Account.ClientID))

	payload := struct {
		Question string      `json:"question"`
		Token    string      `json:"token"`
		ClientID string      `json:"client_id"`
		History  []Turn      `json:"history,omitempty"`
		Booking  BookingHint `json:"booking"`
	}{
		Question: q.Text,
		Token:    q.Account.Token,
		ClientID: q.Account.ClientID,
		History:  q.History,
		Booking:  q.Booking,
	}

	resp, err := c.do(ctx, "chat", http.MethodPost, "/chat", payload)
	if err != nil {
		c.logger.Warn("calendar: chat relay failed", "client_id", q.Account.ClientID, "error", err)
		return RelayFailureAnswer
	}
	if !resp.ok() {
		c.logger.Warn("calendar: chat relay non-2xx", "client_id", q.Account.ClientID, "status", resp.status)
		return RelayFailureAnswer
	}
	var decoded struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.body, &decoded); err != nil || strings.TrimSpace(decoded.Answer) == "" {
		return RelayFailureAnswer
	}
	return decoded.Answer
}
