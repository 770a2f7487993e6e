// Package monitor polls conversation state and adapts its own cadence.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/conversation"
	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

type Mode string

const (
	ModeActive  Mode = "active"
	ModePassive Mode = "passive"
)

type snapshotSource interface {
	ActiveConversations(ctx context.Context) ([]*conversation.Conversation, error)
}

// Status is the last observation, exposed to the admin API.
type Status struct {
	Mode                Mode      `json:"mode"`
	ActiveConversations int       `json:"active_conversations"`
	Phones              []string  `json:"phones,omitempty"`
	LastCheck           time.Time `json:"last_check"`
	NextCheck           time.Time `json:"next_check"`
	LastError           string    `json:"last_error,omitempty"`
}

// Loop polls fast while any conversation awaits a reply and slowly otherwise.
// It never mutates conversations.
type Loop struct {
	source  snapshotSource
	logger  *logging.Logger
	metrics *metrics.MonitorMetrics
	active  time.Duration
	passive time.Duration
	backoff time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	status Status
}

func NewLoop(source snapshotSource, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.Default()
	}
	return &Loop{
		source:  source,
		logger:  logger,
		active:  time.Second,
		passive: 5 * time.Minute,
		backoff: 10 * time.Second,
		now:     time.Now,
		status:  Status{Mode: ModePassive},
	}
}

func (l *Loop) WithIntervals(active, passive time.Duration) *Loop {
	if active > 0 {
		l.active = active
	}
	if passive > 0 {
		l.passive = passive
	}
	return l
}

func (l *Loop) WithBackoff(d time.Duration) *Loop {
	if d > 0 {
		l.backoff = d
	}
	return l
}

func (l *Loop) WithMetrics(m *metrics.MonitorMetrics) *Loop {
	l.metrics = m
	return l
}

// Run polls until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("monitor loop started", "active_interval", l.active.String(), "passive_interval", l.passive.String())
	timer := time.NewTimer(l.Tick(ctx))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("monitor loop stopped")
			return
		case <-timer.C:
			timer.Reset(l.Tick(ctx))
		}
	}
}

// Tick takes one snapshot, publishes the status and returns how long to
// sleep before the next one.
func (l *Loop) Tick(ctx context.Context) time.Duration {
	now := l.now()
	convs, err := l.source.ActiveConversations(ctx)
	if err != nil {
		l.logger.Warn("monitor snapshot failed, backing off", "error", err.Error(), "backoff", l.backoff.String())
		l.metrics.ObserveSnapshotError()
		l.mu.Lock()
		l.status.LastCheck = now
		l.status.NextCheck = now.Add(l.backoff)
		l.status.LastError = err.Error()
		l.mu.Unlock()
		return l.backoff
	}

	phones := make([]string, 0, len(convs))
	for _, c := range convs {
		phones = append(phones, c.Phone)
	}
	mode, wait := ModePassive, l.passive
	if len(convs) > 0 {
		mode, wait = ModeActive, l.active
	}

	l.mu.Lock()
	previous := l.status.Mode
	l.status = Status{
		Mode:                mode,
		ActiveConversations: len(convs),
		Phones:              phones,
		LastCheck:           now,
		NextCheck:           now.Add(wait),
	}
	l.mu.Unlock()

	if previous != mode {
		l.logger.Info("monitor mode changed", "from", string(previous), "to", string(mode), "active_conversations", len(convs))
	}
	l.metrics.ObserveSnapshot(len(convs), mode == ModeActive)
	return wait
}

// Status returns a copy of the last observation.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	s.Phones = append([]string(nil), l.status.Phones...)
	return s
}
