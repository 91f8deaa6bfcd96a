package archive

import "time"

// TranscriptVersion is written into every record.
const TranscriptVersion = "1.0"

// Outcomes recorded for a session.
const (
	OutcomeBooked    = "booked"
	OutcomeNoBooking = "no_booking"
	OutcomeNoLead    = "no_lead"
)

// TranscriptRecord is the structure archived to S3 when a widget session ends.
type TranscriptRecord struct {
	Version    string    `json:"version"`
	SessionID  string    `json:"session_id"`
	ClientID   string    `json:"client_id"`
	EmailHash  string    `json:"email_hash,omitempty"` // sha256 of the lead email
	Timezone   string    `json:"timezone"`
	ArchivedAt time.Time `json:"archived_at"`
	Outcome    string    `json:"outcome"`
	Bookings   int       `json:"bookings"`
	LineCount  int       `json:"line_count"`
	Lines      []string  `json:"lines"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SessionID  string `json:"session_id"`
	ClientID   string `json:"client_id"`
	S3Key      string `json:"s3_key"`
	Outcome    string `json:"outcome"`
	ArchivedAt string `json:"archived_at"`
	LineCount  int    `json:"line_count"`
}
