package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/convo-widget/internal/schedule"
)

type busyResponse struct {
	Busy []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"busy"`
}

type slotsResponse struct {
	Slots []string `json:"slots"`
}

// FetchBusy returns the busy intervals reported for date. Any failure is
// logged and yields an empty list, so the caller treats the day as free.
func (c *Client) FetchBusy(ctx context.Context, acct Account, date time.Time) []schedule.BusyInterval {
	ctx, span := tracer.Start(ctx, "calendar.availability.busy")
	defer span.End()
	span.SetAttributes(
		attribute.String("widget.client_id", acct.ClientID),
		attribute.String("widget.date", date.Format("2006-01-02")),
	)

	body, ok := c.availability(ctx, "availability_busy", acct, date)
	if !ok {
		return []schedule.BusyInterval{}
	}

	var decoded busyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Warn("calendar: decode busy intervals failed", "client_id", acct.ClientID, "error", err)
		return []schedule.BusyInterval{}
	}

	busy := make([]schedule.BusyInterval, 0, len(decoded.Busy))
	for _, b := range decoded.Busy {
		start, err := parseInstant(b.Start)
		if err != nil {
			c.logger.Warn("calendar: skipping busy interval", "client_id", acct.ClientID, "start", b.Start, "error", err)
			continue
		}
		end, err := parseInstant(b.End)
		if err != nil {
			c.logger.Warn("calendar: skipping busy interval", "client_id", acct.ClientID, "end", b.End, "error", err)
			continue
		}
		busy = append(busy, schedule.BusyInterval{Start: start, End: end})
	}
	return busy
}

// FetchSlots reads the server-computed open slots for date, using the same
// degrade-to-empty behaviour as FetchBusy.
func (c *Client) FetchSlots(ctx context.Context, acct Account, date time.Time) []time.Time {
	ctx, span := tracer.Start(ctx, "calendar.availability.slots")
	defer span.End()
	span.SetAttributes(attribute.String("widget.client_id", acct.ClientID))

	body, ok := c.availability(ctx, "availability_slots", acct, date)
	if !ok {
		return []time.Time{}
	}

	var decoded slotsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Warn("calendar: decode slots failed", "client_id", acct.ClientID, "error", err)
		return []time.Time{}
	}
	slots := make([]time.Time, 0, len(decoded.Slots))
	for _, s := range decoded.Slots {
		t, err := parseInstant(s)
		if err != nil {
			continue
		}
		slots = append(slots, t.In(date.Location()))
	}
	return slots
}

func (c *Client) availability(ctx context.Context, operation string, acct Account, date time.Time) ([]byte, bool) {
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	if acct.Token != "" {
		q.Set("token", acct.Token)
	}
	path := fmt.Sprintf("/availability/%s?%s", url.PathEscape(acct.ClientID), q.Encode())

	resp, err := c.do(ctx, operation, http.MethodGet, path, nil)
	if err != nil {
		c.logger.Warn("calendar: availability request failed", "client_id", acct.ClientID, "error", err)
		return nil, false
	}
	if !resp.ok() {
		c.logger.Warn("calendar: availability non-2xx response",
			"client_id", acct.ClientID,
			"status", resp.status,
			"body", truncate(string(resp.body), 300),
		)
		return nil, false
	}
	return resp.body, true
}
