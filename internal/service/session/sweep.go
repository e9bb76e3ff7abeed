package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jgivc/netfshare/internal/common"
	"github.com/jgivc/netfshare/internal/entity"
)

// Sweep runs SweepLiveness with the configured probe.
func (s *sessionService) Sweep(ctx context.Context) (entity.SweepResult, error) {
	return s.SweepLiveness(ctx, s.probe)
}

// SweepLiveness probes every client with cfg.Workers workers and stores the result.
// A probe that fails or outlives cfg.ProbeTimeout counts as unreachable. Reachable
// clients also get LastSeen refreshed. Only store errors are returned.
func (s *sessionService) SweepLiveness(ctx context.Context, probe ProbeFunc) (entity.SweepResult, error) {
	start := s.now()

	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return entity.SweepResult{}, fmt.Errorf("cannot list clients: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		res  entity.SweepResult
		errs []error
	)

	jobs := make(chan *entity.Client)

	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for client := range jobs {
				active := s.reachable(ctx, probe, client.Address)
				err := s.storeState(ctx, client.Address, active)

				mu.Lock()
				switch {
				case err != nil:
					errs = append(errs, err)
				case active:
					res.Active++
				default:
					res.Inactive++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, client := range clients {
		select {
		case jobs <- client:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("sweep interrupted: %w", err)
	}

	elapsed := s.now().Sub(start)
	s.log.Info("Liveness sweep done", slog.Int("active", res.Active), slog.Int("inactive", res.Inactive), slog.Duration("took", elapsed))
	s.metrics.ObserveSweep(res, elapsed)
	s.events.Publish(entity.EventSweep, res)

	if len(errs) > 0 {
		return res, fmt.Errorf("cannot store sweep result: %w", errors.Join(errs...))
	}

	return res, nil
}

func (s *sessionService) reachable(ctx context.Context, probe ProbeFunc, address string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		ok, err := probe(ctx, address)
		if err != nil {
			s.log.Debug("Probe failed", slog.String("address", address), slog.Any("error", err))
		}
		done <- ok && err == nil
	}()

	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		s.log.Debug("Probe timeout", slog.String("address", address))

		return false
	}
}

func (s *sessionService) storeState(ctx context.Context, address string, active bool) error {
	var seen time.Time
	if active {
		seen = s.now()
	}

	if _, err := s.repo.SetClientState(ctx, address, active, seen); err != nil {
		// Reset while sweeping.
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("cannot update %s: %w", address, err)
	}

	return nil
}
