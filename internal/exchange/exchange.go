package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spreadwatch/spreadwatch/internal/models"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/storage"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// Connector maintains one logical subscription to one exchange's ticker
// stream. Initialize must fail fast when reference data cannot resolve the
// connector's output; Connect starts the connection loop in the background;
// Disconnect stops it and waits, aborting any in-flight dial or pending
// reconnect timer.
type Connector interface {
	Name() string
	Initialize(ctx context.Context) error
	Connect(ctx context.Context)
	Disconnect()
}

// Sink is the shared write path for normalized quotes: a synchronous upsert
// into the in-memory store plus a buffered, asynchronous write to the durable
// archive. A full buffer or a failed archive write drops that quote's durable
// copy with a warning; in-memory freshness is unaffected either way.
type Sink struct {
	store   *quotestore.Store
	archive storage.Archive
	buf     chan models.Quote
	done    chan struct{}
}

func NewSink(store *quotestore.Store, archive storage.Archive) *Sink {
	s := &Sink{
		store:   store,
		archive: archive,
		buf:     make(chan models.Quote, 256),
		done:    make(chan struct{}),
	}
	if archive != nil {
		go s.archiveLoop()
	} else {
		close(s.done)
	}
	return s
}

// Publish records the quote. The store upsert is synchronous; the archive
// write is handed to the background writer.
func (s *Sink) Publish(q models.Quote) {
	s.store.Upsert(q)

	if s.archive == nil {
		return
	}
	select {
	case s.buf <- q:
	default:
		log.Warn().
			Str("exchange", q.Exchange).
			Str("pair", q.Pair).
			Msg("archive buffer full, dropping durable write")
	}
}

// Close flushes the archive buffer and waits for the writer to finish.
func (s *Sink) Close() {
	if s.archive != nil {
		close(s.buf)
	}
	<-s.done
}

func (s *Sink) archiveLoop() {
	defer close(s.done)
	for q := range s.buf {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.archive.SaveQuote(ctx, q); err != nil {
			log.Warn().
				Err(err).
				Str("exchange", q.Exchange).
				Str("pair", q.Pair).
				Msg("durable quote write failed")
		}
		cancel()
	}
}

func errExchangeMissing(name string) error {
	return fmt.Errorf("exchange %s missing from reference data", name)
}

func errNoPairs(name string) error {
	return fmt.Errorf("%s: no active trading pairs configured", name)
}

// wait sleeps for d unless ctx is canceled first; it reports whether the full
// delay elapsed. Used for reconnect scheduling so a stop request cancels a
// pending timer instead of racing into a stale reconnect attempt.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// lifecycle holds the cancel/done pair every connector uses to run its
// connection loop in the background and to make Disconnect idempotent.
type lifecycle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func (l *lifecycle) start(ctx context.Context, run func(context.Context)) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		run(runCtx)
	}()
}

func (l *lifecycle) stop() {
	if l.cancel == nil {
		return
	}
	l.stopOnce.Do(func() {
		l.cancel()
		<-l.done
	})
}
