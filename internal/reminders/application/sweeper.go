package application

import (
	"context"
	"log"
	"time"

	"carecoord/internal/observability/metrics"
)

// Sweeper periodically converts overdue pending occurrences to missed.
type Sweeper struct {
	service  *Service
	interval time.Duration
	grace    time.Duration
	logger   *log.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(service *Service, interval, grace time.Duration, logger *log.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		grace:    grace,
		logger:   logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || s.service == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	reaped, err := s.service.ReapOverdue(ctx, s.grace)
	if err != nil {
		metrics.ObserveReapSweep(metrics.ResultError, time.Since(start))
		if s.logger != nil {
			s.logger.Printf("reminder sweep error: %v", err)
		}
		return
	}
	metrics.ObserveReapSweep(metrics.ResultSuccess, time.Since(start))
	if reaped > 0 && s.logger != nil {
		s.logger.Printf("reminder sweep: marked %d overdue occurrences missed", reaped)
	}
}
