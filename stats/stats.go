package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

type Stats struct {
	mu sync.Mutex

	RunningSince time.Time

	GroupRequests   uint64
	PrivateRequests uint64

	MatchedMessages uint64
	ImagesSent      uint64
	ImageFailures   uint64

	RefreshRuns     uint64
	RefreshFailures uint64
	ImagesAdded     uint64
}

// Snapshot is a copy of the counters that is safe to read without locking.
type Snapshot struct {
	Uptime string `json:"uptime"`

	GroupRequests   uint64 `json:"group_requests"`
	PrivateRequests uint64 `json:"private_requests"`

	MatchedMessages uint64 `json:"matched_messages"`
	ImagesSent      uint64 `json:"images_sent"`
	ImageFailures   uint64 `json:"image_failures"`

	RefreshRuns     uint64 `json:"refresh_runs"`
	RefreshFailures uint64 `json:"refresh_failures"`
	ImagesAdded     uint64 `json:"images_added"`
}

func NewStats() *Stats {
	return &Stats{
		RunningSince: time.Now(),
	}
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Uptime: time.Since(s.RunningSince).Round(time.Second).String(),

		GroupRequests:   s.GroupRequests,
		PrivateRequests: s.PrivateRequests,

		MatchedMessages: s.MatchedMessages,
		ImagesSent:      s.ImagesSent,
		ImageFailures:   s.ImageFailures,

		RefreshRuns:     s.RefreshRuns,
		RefreshFailures: s.RefreshFailures,
		ImagesAdded:     s.ImagesAdded,
	}
}

func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func (s *Stats) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		sentry.CaptureException(err)

		return "{\"error\": \"cannot serialize stats\"}"
	}

	return string(data)
}

func (s *Stats) GroupRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GroupRequests++
}

func (s *Stats) PrivateRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PrivateRequests++
}

func (s *Stats) MatchedMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MatchedMessages++
}

func (s *Stats) ImageSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ImagesSent++
}

func (s *Stats) ImageFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ImageFailures++
}

// RefreshFinished records one refresh attempt and how many images it added.
func (s *Stats) RefreshFinished(added int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefreshRuns++
	if err != nil {
		s.RefreshFailures++
	}
	s.ImagesAdded += uint64(added)
}
