package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/convo-widget/pkg/logging"
)

var testAccount = Account{ClientID: "acme", Token: "tok"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, logging.New("error"))
}

func TestFetchBusy(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/availability/acme", r.URL.Path)
		assert.Equal(t, "2025-03-03", r.URL.Query().Get("date"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		_, _ = io.WriteString(w, `{"busy":[{"start":"2025-03-03T10:00Z","end":"2025-03-03T10:30:00Z"},{"start":"bad","end":"x"}]}`)
	})

	busy := client.FetchBusy(context.Background(), testAccount, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	require.Len(t, busy, 1)
	assert.True(t, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC).Equal(busy[0].Start))
	assert.True(t, time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC).Equal(busy[0].End))
}

func TestFetchBusy_DegradesToEmpty(t *testing.T) {
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"busy":`)
		}},
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			busy := client.FetchBusy(context.Background(), testAccount, date)
			assert.NotNil(t, busy)
			assert.Empty(t, busy)
		})
	}
}

func TestFetchBusy_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, logging.New("error"), WithTimeout(time.Second))

	busy := client.FetchBusy(context.Background(), testAccount, time.Now())
	assert.Empty(t, busy)
}

func TestFetchSlots(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"slots":["2025-08-02T15:00:00-04:00","2025-08-02T15:30:00-04:00"]}`)
	})
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	slots := client.FetchSlots(context.Background(), testAccount, time.Date(2025, 8, 2, 0, 0, 0, 0, ny))
	require.Len(t, slots, 2)
	assert.Equal(t, 15, slots[0].Hour())
	assert.Equal(t, ny, slots[0].Location())
}

func TestSubmit_Success(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/book", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"confirmation_link":"https://meet.example.com/abc"}`)
	})

	out := client.Submit(context.Background(), BookingRequest{
		Account:  testAccount,
		Name:     "Ada",
		Email:    "ada@example.com",
		At:       time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		Timezone: "UTC",
		Purpose:  "Intro call",
		Provider: "google",
	})

	require.True(t, out.OK())
	assert.Equal(t, "https://meet.example.com/abc", out.ConfirmationLink)
	assert.Equal(t, "acme", got["client_id"])
	assert.Equal(t, "tok", got["token"])
	assert.Equal(t, "2025-03-03T10:00:00Z", got["datetime"])
	assert.Equal(t, "Intro call", got["purpose"])
	assert.Equal(t, "google", got["bookingProvider"])
}

func TestSubmit_ConflictWithSuggestion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":{"suggested":"2025-03-04T15:00Z"}}`)
	})

	out := client.Submit(context.Background(), BookingRequest{Account: testAccount, At: time.Now()})
	require.False(t, out.OK())
	require.NotNil(t, out.Failure.Suggested)
	assert.True(t, time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC).Equal(*out.Failure.Suggested))
	assert.Equal(t, http.StatusConflict, out.Failure.Status)
	assert.Equal(t, "The selected time is not available.", out.Failure.Message)
}

func TestSubmit_TransportFailureIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, logging.New("error"))

	out := client.Submit(context.Background(), BookingRequest{Account: testAccount, At: time.Now()})
	require.False(t, out.OK())
	assert.Equal(t, GenericBookingFailure, out.Failure.Message)
	assert.Nil(t, out.Failure.Suggested)
}

func TestSubmit_UndecodableSuccessIsGeneric(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>ok</html>`)
	})
	out := client.Submit(context.Background(), BookingRequest{Account: testAccount, At: time.Now()})
	require.False(t, out.OK())
	assert.Equal(t, GenericBookingFailure, out.Failure.Message)
}

func TestSendSummary(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/summary", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"status":"saved"}`)
	})

	err := client.SendSummary(context.Background(), Summary{Account: testAccount, Name: "Ada", Email: "ada@example.com", ChatLog: "User: hi\n"})
	require.NoError(t, err)
	assert.Equal(t, "User: hi\n", got["chat_log"])
	assert.Equal(t, "acme", got["client_id"])

	assert.Error(t, client.SendSummary(context.Background(), Summary{Account: testAccount}))
}

func TestAsk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Question string `json:"question"`
			History  []Turn `json:"history"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "What are your prices?", body.Question)
		assert.Len(t, body.History, 1)
		_, _ = io.WriteString(w, `{"answer":"Plans start at $10."}`)
	})

	answer := client.Ask(context.Background(), Question{
		Account: testAccount,
		Text:    "What are your prices?",
		History: []Turn{{User: "hi", Bot: "hello"}},
	})
	assert.Equal(t, "Plans start at $10.", answer)
}

func TestAsk_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	assert.Equal(t, RelayFailureAnswer, client.Ask(context.Background(), Question{Account: testAccount, Text: "hi"}))
}
