package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spreadwatch/spreadwatch/internal/exchange"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/storage"
)

const (
	DefaultPurgeInterval = time.Hour
	DefaultRetention     = 24 * time.Hour
)

// Supervisor owns the connector set as a unit: fail-fast initialization,
// concurrent independent connects, a periodic purge cycle over the store and
// the durable archive, and a clean stop.
type Supervisor struct {
	connectors    []exchange.Connector
	store         *quotestore.Store
	archive       storage.Archive // nil when no durable storage is configured
	purgeInterval time.Duration
	retention     time.Duration
	stopCh        chan struct{}
	purgeDone     chan struct{}
	started       bool
}

func New(connectors []exchange.Connector, store *quotestore.Store, archive storage.Archive, purgeInterval, retention time.Duration) *Supervisor {
	if purgeInterval <= 0 {
		purgeInterval = DefaultPurgeInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Supervisor{
		connectors:    connectors,
		store:         store,
		archive:       archive,
		purgeInterval: purgeInterval,
		retention:     retention,
		stopCh:        make(chan struct{}),
		purgeDone:     make(chan struct{}),
	}
}

// Start initializes every connector, then connects them all. Initialization
// errors are fatal for the whole unit: a connector that cannot resolve its
// reference data must stop the process rather than run uselessly. Connects
// are independent; a slow or failing exchange never delays the others.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, c := range s.connectors {
		if err := c.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s connector: %w", c.Name(), err)
		}
	}

	for _, c := range s.connectors {
		c.Connect(ctx)
	}
	s.started = true
	log.Info().Int("connectors", len(s.connectors)).Msg("ingestion started")

	go s.purgeLoop()
	return nil
}

// Stop disconnects every connector, cancels the purge schedule, and waits for
// both to wind down.
func (s *Supervisor) Stop() {
	if !s.started {
		return
	}
	close(s.stopCh)
	<-s.purgeDone

	for _, c := range s.connectors {
		c.Disconnect()
	}
	log.Info().Msg("ingestion stopped")
}

func (s *Supervisor) purgeLoop() {
	defer close(s.purgeDone)

	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purge()
		case <-s.stopCh:
			return
		}
	}
}

// purge is best-effort housekeeping: a failed or missed cycle costs memory
// and disk, never matching correctness.
func (s *Supervisor) purge() {
	removed := s.store.Purge(s.retention)
	log.Info().
		Int("removed", removed).
		Int("remaining", s.store.Len()).
		Dur("retention", s.retention).
		Msg("quote store purged")

	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.archive.PurgeBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Error().Err(err).Msg("archive retention sweep failed")
		return
	}
	log.Info().Int64("removed", n).Msg("archive retention sweep complete")
}
