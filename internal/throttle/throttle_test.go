package throttle

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/genmesh/core"
)

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
		ok     bool
	}{
		{"none", http.Header{}, 0, false},
		{"nil", nil, 0, false},
		{"seconds", http.Header{"Retry-After": {"3"}}, 3 * time.Second, true},
		{"fractional seconds", http.Header{"Retry-After": {"1.5"}}, 1500 * time.Millisecond, true},
		{"milliseconds win", http.Header{"Retry-After-Ms": {"250"}, "Retry-After": {"9"}}, 250 * time.Millisecond, true},
		{"http date", http.Header{"Retry-After": {now.Add(10 * time.Second).Format(http.TimeFormat)}}, 10 * time.Second, true},
		{"date in the past", http.Header{"Retry-After": {now.Add(-time.Minute).Format(http.TimeFormat)}}, 0, true},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0, false},
		{"negative", http.Header{"Retry-After": {"-1"}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RetryAfter(tt.header, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsThrottleStatus(t *testing.T) {
	assert.True(t, IsThrottleStatus(http.StatusTooManyRequests))
	assert.True(t, IsThrottleStatus(StatusOverloaded))
	assert.False(t, IsThrottleStatus(http.StatusInternalServerError))
	assert.False(t, IsThrottleStatus(http.StatusBadRequest))
}

func TestSchedule_GrowsAndResets(t *testing.T) {
	s := NewSchedule(func(o *Options) {
		o.InitialInterval = 100 * time.Millisecond
		o.MaxInterval = 300 * time.Millisecond
		o.RandomizationFactor = 0
	})

	assert.Equal(t, 100*time.Millisecond, s.Next())
	assert.Equal(t, 200*time.Millisecond, s.Next())
	assert.Equal(t, 300*time.Millisecond, s.Next(), "capped at max interval")

	s.Reset()
	assert.Equal(t, 100*time.Millisecond, s.Next())
}

func TestSchedule_Classify(t *testing.T) {
	s := NewSchedule(func(o *Options) {
		o.InitialInterval = time.Second
		o.RandomizationFactor = 0
	})
	apiErr := errors.New("rate limited")

	assert.Equal(t, apiErr, s.Classify(http.StatusBadRequest, nil, apiErr))

	before := time.Now()
	err := s.Classify(http.StatusTooManyRequests, http.Header{"Retry-After": {"5"}}, apiErr)
	te, ok := core.IsThrottle(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, apiErr)
	assert.WithinDuration(t, before.Add(5*time.Second), te.ResumeAt, time.Second)

	err = s.Classify(StatusOverloaded, http.Header{}, apiErr)
	te, ok = core.IsThrottle(err)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), te.ResumeAt, 500*time.Millisecond)
}
