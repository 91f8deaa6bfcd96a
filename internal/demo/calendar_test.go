package demo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/convo-widget/internal/calendar"
	"github.com/wolfman30/convo-widget/internal/widgetcfg"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const acmeConfig = `{
  "client_id": "acme",
  "token": "tok",
  "chatbotName": "AcmeBot",
  "brandName": "Acme",
  "meetingDuration": 30,
  "timezone": "America/New_York",
  "availableHours": {"monday": ["09:00", "17:00"]}
}`

type fixture struct {
	cal    *Calendar
	client *calendar.Client
	srv    *httptest.Server
	ny     *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w, err := widgetcfg.Parse([]byte(acmeConfig), "acme", nil)
	require.NoError(t, err)

	cal := NewCalendar(logging.New("error"))
	cal.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	cal.AddClient(w)

	srv := httptest.NewServer(cal.Routes())
	t.Cleanup(srv.Close)
	return &fixture{
		cal:    cal,
		client: calendar.NewClient(srv.URL, logging.New("error")),
		srv:    srv,
		ny:     w.Location,
	}
}

func (f *fixture) book(at time.Time, token string) calendar.Outcome {
	return f.client.Submit(context.Background(), calendar.BookingRequest{
		Account:  calendar.Account{ClientID: "acme", Token: token},
		Name:     "Ada",
		Email:    "ada@example.com",
		At:       at,
		Timezone: "America/New_York",
		Purpose:  "Intro call",
	})
}

func TestBookThenConflictSuggestsNextSlot(t *testing.T) {
	f := newFixture(t)
	ten := time.Date(2025, 3, 3, 10, 0, 0, 0, f.ny)

	first := f.book(ten, "tok")
	require.True(t, first.OK(), "first booking should succeed: %+v", first.Failure)
	assert.Contains(t, first.ConfirmationLink, "https://zoom.demo.invalid/meet/")

	second := f.book(ten, "tok")
	require.False(t, second.OK())
	assert.Equal(t, http.StatusConflict, second.Failure.Status)
	assert.Equal(t, "The selected time is not available.", second.Failure.Message)
	require.NotNil(t, second.Failure.Suggested)
	assert.True(t, ten.Add(30*time.Minute).Equal(*second.Failure.Suggested))
}

func TestAvailabilityReflectsBookings(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.book(time.Date(2025, 3, 3, 10, 0, 0, 0, f.ny), "tok").OK())

	acct := calendar.Account{ClientID: "acme", Token: "tok"}
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, f.ny)

	busy := f.client.FetchBusy(context.Background(), acct, day)
	require.Len(t, busy, 1)
	assert.True(t, time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC).Equal(busy[0].Start))

	slots := f.client.FetchSlots(context.Background(), acct, day)
	assert.Len(t, slots, 15)
	for _, s := range slots {
		assert.False(t, s.Equal(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)))
	}

	// Wrong token degrades to an empty day on the client side.
	assert.Empty(t, f.client.FetchBusy(context.Background(), calendar.Account{ClientID: "acme", Token: "nope"}, day))
}

func TestBookRejections(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		at      time.Time
		token   string
		status  int
		message string
	}{
		{"outside hours", time.Date(2025, 3, 3, 18, 0, 0, 0, f.ny), "tok", http.StatusUnprocessableEntity, "Requested time is outside available hours."},
		{"in the past", time.Date(2025, 2, 24, 10, 0, 0, 0, f.ny), "tok", http.StatusBadRequest, "Cannot book a time in the past."},
		{"bad token", time.Date(2025, 3, 3, 11, 0, 0, 0, f.ny), "nope", http.StatusUnauthorized, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.book(tt.at, tt.token)
			require.False(t, out.OK())
			assert.Equal(t, tt.status, out.Failure.Status)
			assert.Equal(t, tt.message, out.Failure.Message)
			assert.Nil(t, out.Failure.Suggested)
		})
	}
}

func TestSummaryAndChat(t *testing.T) {
	f := newFixture(t)
	acct := calendar.Account{ClientID: "acme", Token: "tok"}

	require.NoError(t, f.client.SendSummary(context.Background(), calendar.Summary{
		Account: acct, Name: "Ada", Email: "ada@example.com", ChatLog: "You: hi\n",
	}))
	summaries := f.cal.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "acme", summaries[0].ClientID)

	answer := f.client.Ask(context.Background(), calendar.Question{Account: acct, Text: "pricing?"})
	assert.Contains(t, answer, "Someone from Acme will follow up")
}

func TestConfigsServeRegisteredClients(t *testing.T) {
	f := newFixture(t)
	store := widgetcfg.NewStore("", f.srv.URL, nil, logging.New("error"))

	w, err := store.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "AcmeBot", w.Config.ChatbotName)
	assert.Equal(t, "America/New_York", w.Location.String())
	assert.Equal(t, 30, w.Policy.DurationMinutes())

	other, err := store.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "247Convo Bot", other.Config.ChatbotName)
}

func TestUnregisteredClientsUseConfigSource(t *testing.T) {
	logger := logging.New("error")
	store := widgetcfg.NewStore("", "", time.UTC, logger)
	w, err := widgetcfg.Parse([]byte(`{"token":"secret","availableHours":{"tuesday":["10:00","11:00"]},"meetingDuration":30}`), "beta", time.UTC)
	require.NoError(t, err)
	store.Put(w)

	cal := NewCalendar(logger).WithConfigs(store)
	srv := httptest.NewServer(cal.Routes())
	t.Cleanup(srv.Close)
	client := calendar.NewClient(srv.URL, logger)

	slots := client.FetchSlots(context.Background(), calendar.Account{ClientID: "beta", Token: "secret"}, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	require.Len(t, slots, 2)
	assert.Equal(t, 10, slots[0].UTC().Hour())
}
