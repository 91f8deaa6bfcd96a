// Package widgetcfg loads per-client widget configuration: branding, quick
// options, booking provider and the working-hours policy.
package widgetcfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/convo-widget/internal/schedule"
)

const (
	defaultChatbotName     = "247Convo Bot"
	defaultBrandName       = "247Convo"
	defaultQuickOption1    = "Book Appointment"
	defaultQuickOption2    = "How do I integrate?"
	defaultQuickOption3    = "Talk to a human"
	defaultBookingProvider = "zoom"
)

// FlexInt accepts a JSON number or a numeric string ("30").
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("widgetcfg: invalid integer %q", s)
		}
		*f = FlexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// ClientConfig mirrors the JSON a client publishes for its widget.
type ClientConfig struct {
	ClientID        string              `json:"client_id"`
	Token           string              `json:"token"`
	ChatbotName     string              `json:"chatbotName"`
	BrandName       string              `json:"brandName"`
	SupportURL      string              `json:"supportUrl"`
	AvatarURL       string              `json:"avatarUrl"`
	QuickOption1    string              `json:"quickOption1"`
	QuickOption2    string              `json:"quickOption2"`
	QuickOption3    string              `json:"quickOption3"`
	MeetingDuration FlexInt             `json:"meetingDuration"`
	BookingProvider string              `json:"bookingProvider"`
	AvailableHours  map[string][]string `json:"availableHours"`
	Timezone        string              `json:"timezone"`
}

// Widget is a validated client config with its derived policy.
type Widget struct {
	Config   ClientConfig
	Policy   *schedule.Policy
	Location *time.Location
}

// QuickOptions returns the three quick-reply buttons in display order.
func (w *Widget) QuickOptions() []string {
	return []string{w.Config.QuickOption1, w.Config.QuickOption2, w.Config.QuickOption3}
}

// BookingOption is the quick option that starts a booking.
func (w *Widget) BookingOption() string {
	return w.Config.QuickOption1
}

// Parse decodes raw JSON and builds a Widget. Missing fields take the stock
// widget defaults; malformed hours are rejected.
func Parse(raw []byte, clientID string, fallbackTZ *time.Location) (*Widget, error) {
	var cfg ClientConfig
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("widgetcfg: decode %s: %w", clientID, err)
		}
	}
	return Build(cfg, clientID, fallbackTZ)
}

// Build applies defaults to cfg and validates it.
func Build(cfg ClientConfig, clientID string, fallbackTZ *time.Location) (*Widget, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = clientID
	}
	if cfg.ChatbotName == "" {
		cfg.ChatbotName = defaultChatbotName
	}
	if cfg.BrandName == "" {
		cfg.BrandName = defaultBrandName
	}
	if cfg.QuickOption1 == "" {
		cfg.QuickOption1 = defaultQuickOption1
	}
	if cfg.QuickOption2 == "" {
		cfg.QuickOption2 = defaultQuickOption2
	}
	if cfg.QuickOption3 == "" {
		cfg.QuickOption3 = defaultQuickOption3
	}
	if cfg.BookingProvider == "" {
		cfg.BookingProvider = defaultBookingProvider
	}
	if cfg.MeetingDuration <= 0 {
		cfg.MeetingDuration = schedule.DefaultMeetingMinutes
	}

	policy, err := schedule.NewPolicy(cfg.AvailableHours, int(cfg.MeetingDuration))
	if err != nil {
		return nil, fmt.Errorf("widgetcfg: %s availableHours: %w", cfg.ClientID, err)
	}

	loc := fallbackTZ
	if loc == nil {
		loc = time.UTC
	}
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("widgetcfg: %s timezone: %w", cfg.ClientID, err)
		}
		loc = l
	}
	return &Widget{Config: cfg, Policy: policy, Location: loc}, nil
}
