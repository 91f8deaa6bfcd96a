package widgetcfg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/convo-widget/pkg/logging"
)

// ErrInvalidClientID is returned for IDs that cannot name a config file.
var ErrInvalidClientID = errors.New("widgetcfg: invalid client id")

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// S3API is the subset of the S3 client used for config objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store loads each client's config once and caches it for the process
// lifetime. Lookups try the local directory, then the S3 bucket, then the
// remote base URL. A client with no config anywhere gets the stock defaults.
type Store struct {
	dir        string
	s3Client   S3API
	bucket     string
	prefix     string
	baseURL    string
	fallbackTZ *time.Location
	httpClient *http.Client
	logger     *logging.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*Widget
}

// NewStore builds a store. dir and baseURL may both be empty.
func NewStore(dir, baseURL string, fallbackTZ *time.Location, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		dir:        dir,
		baseURL:    strings.TrimRight(baseURL, "/"),
		fallbackTZ: fallbackTZ,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		cache:      make(map[string]*Widget),
	}
}

// WithBucket adds an S3 bucket source. Objects are read from
// <prefix>/<clientID>.json.
func (s *Store) WithBucket(client S3API, bucket, prefix string) *Store {
	s.s3Client = client
	s.bucket = bucket
	s.prefix = strings.Trim(prefix, "/")
	return s
}

// Get returns the widget for clientID, loading it on first use.
func (s *Store) Get(ctx context.Context, clientID string) (*Widget, error) {
	if !clientIDPattern.MatchString(clientID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClientID, clientID)
	}

	s.mu.RLock()
	w, ok := s.cache[clientID]
	s.mu.RUnlock()
	if ok {
		return w, nil
	}

	v, err, _ := s.group.Do(clientID, func() (interface{}, error) {
		raw, err := s.fetch(ctx, clientID)
		if err != nil {
			return nil, err
		}
		w, err := Parse(raw, clientID, s.fallbackTZ)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[clientID] = w
		s.mu.Unlock()
		s.logger.Info("widget config loaded", "client_id", clientID, "has_hours", w.Policy.HasHours())
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Widget), nil
}

// Put installs a config directly, bypassing the sources.
func (s *Store) Put(w *Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[w.Config.ClientID] = w
}

func (s *Store) fetch(ctx context.Context, clientID string) ([]byte, error) {
	if s.dir != "" {
		raw, err := os.ReadFile(filepath.Join(s.dir, clientID+".json"))
		switch {
		case err == nil:
			return raw, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("widgetcfg: read %s: %w", clientID, err)
		}
	}
	if s.s3Client != nil && s.bucket != "" {
		raw, found, err := s.fetchObject(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if found {
			return raw, nil
		}
	}
	if s.baseURL != "" {
		raw, found, err := s.fetchRemote(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if found {
			return raw, nil
		}
	}
	s.logger.Warn("no widget config found, using defaults", "client_id", clientID)
	return nil, nil
}

func (s *Store) fetchRemote(ctx context.Context, clientID string) ([]byte, bool, error) {
	endpoint := fmt.Sprintf("%s/configs/%s.json", s.baseURL, url.PathEscape(clientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("widgetcfg: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("widgetcfg: fetch %s: %w", clientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, fmt.Errorf("widgetcfg: read %s: %w", clientID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("widgetcfg: fetch %s returned %d", clientID, resp.StatusCode)
	}
	return body, true, nil
}

func (s *Store) fetchObject(ctx context.Context, clientID string) ([]byte, bool, error) {
	key := clientID + ".json"
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("widgetcfg: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, 1<<20))
	if err != nil {
		return nil, false, fmt.Errorf("widgetcfg: read %s: %w", key, err)
	}
	return body, true, nil
}
