// Package throttle turns rate-limited HTTP responses into core.ThrottleError
// values. The resume time comes from the retry-after-ms or retry-after
// response headers; when neither is present an exponential backoff schedule
// shared by every request of one executor supplies the delay.
package throttle

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/genmesh/core"
)

// StatusOverloaded is the non-standard status Anthropic returns when the API
// is temporarily overloaded.
const StatusOverloaded = 529

// IsThrottleStatus reports whether an HTTP status signals a backend-wide
// rate limit.
func IsThrottleStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == StatusOverloaded
}

// RetryAfter extracts the delay requested by a response. retry-after-ms wins
// over retry-after; retry-after accepts seconds or an HTTP date.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	if v := strings.TrimSpace(h.Get("retry-after-ms")); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms >= 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	v := strings.TrimSpace(h.Get("retry-after"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// Options configures a Schedule.
type Options struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultOptions returns the schedule used when a backend sends no hint.
func DefaultOptions() Options {
	return Options{
		InitialInterval:     time.Second,
		MaxInterval:         time.Minute,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// Schedule is a concurrency-safe exponential backoff that never stops.
// Consecutive throttles grow the delay; Reset after a success.
type Schedule struct {
	mu   sync.Mutex
	expo *backoff.ExponentialBackOff
	max  time.Duration
}

// NewSchedule creates a schedule from DefaultOptions adjusted by optFns.
func NewSchedule(optFns ...func(o *Options)) *Schedule {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = opts.InitialInterval
	expo.MaxInterval = opts.MaxInterval
	expo.Multiplier = opts.Multiplier
	expo.RandomizationFactor = opts.RandomizationFactor
	expo.MaxElapsedTime = 0
	expo.Reset()

	return &Schedule{expo: expo, max: opts.MaxInterval}
}

// Next returns the next fallback delay.
func (s *Schedule) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.expo.NextBackOff()
	if d == backoff.Stop {
		return s.max
	}
	return d
}

// Reset restarts the schedule at the initial interval.
func (s *Schedule) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expo.Reset()
}

// Classify wraps err in a *core.ThrottleError when status is a throttle
// status and returns err unchanged otherwise.
func (s *Schedule) Classify(status int, h http.Header, err error) error {
	if !IsThrottleStatus(status) {
		return err
	}
	now := time.Now()
	d, ok := RetryAfter(h, now)
	if !ok {
		d = s.Next()
	}
	return &core.ThrottleError{ResumeAt: now.Add(d), Err: err}
}
