// Package archive writes scrubbed widget transcripts to S3 when a session
// ends, with a monthly JSONL manifest alongside.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/wolfman30/convo-widget/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SessionTranscript is what the widget hands over at session close.
type SessionTranscript struct {
	SessionID string
	ClientID  string
	Email     string
	Timezone  string
	ChatLog   string
	Bookings  int
}

// Store archives transcripts to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveSession scrubs a finished session and archives it.
func (s *Store) ArchiveSession(ctx context.Context, t SessionTranscript) error {
	if !s.Enabled() {
		return nil
	}
	lines := ScrubLines(splitLines(t.ChatLog))
	record := &TranscriptRecord{
		Version:    TranscriptVersion,
		SessionID:  t.SessionID,
		ClientID:   t.ClientID,
		Timezone:   t.Timezone,
		ArchivedAt: s.now().UTC(),
		Outcome:    outcomeFor(t),
		Bookings:   t.Bookings,
		LineCount:  len(lines),
		Lines:      lines,
	}
	if t.Email != "" {
		record.EmailHash = HashEmail(t.Email)
	}
	return s.ArchiveTranscript(ctx, record)
}

// ArchiveTranscript writes a TranscriptRecord as JSON to S3 and appends to the manifest.
func (s *Store) ArchiveTranscript(ctx context.Context, record *TranscriptRecord) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	at := record.ArchivedAt
	if at.IsZero() {
		at = s.now().UTC()
	}

	key := fmt.Sprintf("transcripts/v1/by-date/%d/%02d/%02d/%s/%s.json",
		at.Year(), at.Month(), at.Day(), record.ClientID, record.SessionID)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived transcript to S3",
		"client_id", record.ClientID,
		"session_id", record.SessionID,
		"s3_key", key,
		"line_count", record.LineCount,
		"outcome", record.Outcome,
	)

	entry := ManifestEntry{
		SessionID:  record.SessionID,
		ClientID:   record.ClientID,
		S3Key:      key,
		Outcome:    record.Outcome,
		ArchivedAt: at.Format(time.RFC3339),
		LineCount:  record.LineCount,
	}
	if err := s.AppendManifest(ctx, at, entry); err != nil {
		// The transcript itself is already stored.
		s.logger.Warn("failed to append manifest", "error", err, "session_id", record.SessionID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the manifest for the month of at.
// S3 has no append, so this is a read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	key := fmt.Sprintf("transcripts/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", key)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func outcomeFor(t SessionTranscript) string {
	switch {
	case t.Bookings > 0:
		return OutcomeBooked
	case t.Email == "":
		return OutcomeNoLead
	default:
		return OutcomeNoBooking
	}
}

func splitLines(log string) []string {
	log = strings.TrimRight(log, "\n")
	if log == "" {
		return []string{}
	}
	return strings.Split(log, "\n")
}
