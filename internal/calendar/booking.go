package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// GenericBookingFailure is shown when the service could not be reached or
// its answer could not be read.
const GenericBookingFailure = "Couldn't complete booking. Please try again."

// BookingRequest is built once per submission attempt.
type BookingRequest struct {
	Account  Account
	Name     string
	Email    string
	At       time.Time
	Timezone string
	Purpose  string
	Provider string
}

type bookingPayload struct {
	ClientID        string `json:"client_id"`
	Token           string `json:"token"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Datetime        string `json:"datetime"`
	Timezone        string `json:"timezone"`
	Purpose         string `json:"purpose"`
	BookingProvider string `json:"bookingProvider,omitempty"`
}

func (r BookingRequest) payload() bookingPayload {
	return bookingPayload{
		ClientID:        r.Account.ClientID,
		Token:           r.Account.Token,
		Name:            r.Name,
		Email:           r.Email,
		Datetime:        r.At.UTC().Format(time.RFC3339),
		Timezone:        r.Timezone,
		Purpose:         r.Purpose,
		BookingProvider: r.Provider,
	}
}

// Failure is a normalized booking error.
type Failure struct {
	Message   string
	Suggested *time.Time
	Status    int
}

// Outcome is either a confirmation link or a Failure.
type Outcome struct {
	ConfirmationLink string
	Failure          *Failure
}

// OK reports whether the booking was created.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Submit creates the booking. It never returns an error: every failure is
// folded into the Outcome.
func (c *Client) Submit(ctx context.Context, req BookingRequest) Outcome {
	ctx, span := tracer.Start(ctx, "calendar.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("widget.client_id", req.Account.ClientID),
		attribute.String("widget.datetime", req.At.UTC().Format(time.RFC3339)),
	)

	resp, err := c.do(ctx, "book", http.MethodPost, "/book", req.payload())
	if err != nil {
		c.logger.Warn("calendar: booking request failed", "client_id", req.Account.ClientID, "error", err)
		return Outcome{Failure: &Failure{Message: GenericBookingFailure}}
	}

	if !resp.ok() {
		failure := normalizeFailure(resp.status, resp.body)
		c.logger.Info("calendar: booking rejected",
			"client_id", req.Account.ClientID,
			"status", resp.status,
			"message", failure.Message,
			"has_suggestion", failure.Suggested != nil,
		)
		span.SetAttributes(attribute.Int("http.status_code", resp.status))
		return Outcome{Failure: failure}
	}

	var decoded struct {
		ConfirmationLink string `json:"confirmation_link"`
	}
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		c.logger.Warn("calendar: decode booking response failed", "client_id", req.Account.ClientID, "error", err)
		return Outcome{Failure: &Failure{Message: GenericBookingFailure, Status: resp.status}}
	}
	c.logger.Info("calendar: booking created", "client_id", req.Account.ClientID)
	return Outcome{ConfirmationLink: decoded.ConfirmationLink}
}
