// Package router applies mixer samples to playback streams by matching
// each stream's application name against an ordered routing table.
package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/PercentBoat4164/HardwareMixer/mixer"
	"github.com/PercentBoat4164/HardwareMixer/pulse"
)

// CatchAll is the sentinel application name marking a channel that
// receives every stream not matched by a named group.
const CatchAll = "ANY"

var ErrDuplicateCatchAll = errors.New("routing table has more than one catch-all entry")

// Entry assigns a group of application names to one channel. Channel is
// 0-based; configuration files use 1-based indices and convert when
// building the table.
type Entry struct {
	Apps    []string
	Channel int
}

// Table is an ordered routing table. Order is authoritative: the first
// named group containing a stream's application name wins, and the
// catch-all is consulted only after every named group has failed.
type Table struct {
	entries  []Entry
	catchAll int // channel index, -1 when absent
}

func NewTable(entries []Entry) (*Table, error) {
	t := &Table{catchAll: -1}
	for _, e := range entries {
		if isCatchAll(e) {
			if t.catchAll >= 0 {
				return nil, ErrDuplicateCatchAll
			}
			t.catchAll = e.Channel
			continue
		}
		t.entries = append(t.entries, e)
	}
	return t, nil
}

func isCatchAll(e Entry) bool {
	return len(e.Apps) == 1 && e.Apps[0] == CatchAll
}

// Route returns the channel index for an application name. ok is false
// when no named group matches and no catch-all exists.
func (t *Table) Route(app string) (channel int, ok bool) {
	for _, e := range t.entries {
		for _, a := range e.Apps {
			if a == app {
				return e.Channel, true
			}
		}
	}
	if t.catchAll >= 0 {
		return t.catchAll, true
	}
	return 0, false
}

// Backend is the capability surface the router needs from the audio
// server. *pulse.Client satisfies it.
type Backend interface {
	Playbacks() ([]pulse.Stream, error)
	SetVolume(s pulse.Stream, v float64) error
	Events() <-chan pulse.StreamEvent
}

// Sampler is the capability surface the router needs from the mixer
// session.
type Sampler interface {
	Snapshot() mixer.Sample
}

// Router runs the steady-state volume loop.
type Router struct {
	table   *Table
	mixer   Sampler
	backend Backend
	logger  *zap.Logger
}

func New(table *Table, m Sampler, b Backend, logger *zap.Logger) *Router {
	return &Router{table: table, mixer: m, backend: b, logger: logger}
}

// Run applies volumes once, then blocks until a new mixer sample arrives
// on wake or a playback stream appears, and applies again. It returns
// only on ctx cancellation or a backend connection failure; individual
// volume-set failures (a stream vanishing mid-iteration) never abort it.
func (r *Router) Run(ctx context.Context, wake <-chan struct{}) error {
	for {
		if err := r.Apply(); err != nil {
			return err
		}
		for woke := false; !woke; {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wake:
				woke = true
			case ev := <-r.backend.Events():
				// removals need no re-apply; new streams get volumes now
				woke = ev.Kind == pulse.StreamAdded
			}
		}
	}
}

// Apply pushes the current sample out to every matched stream.
func (r *Router) Apply() error {
	sample := r.mixer.Snapshot()
	streams, err := r.backend.Playbacks()
	if err != nil {
		return fmt.Errorf("enumerate streams: %w", err)
	}
	for _, s := range streams {
		if s.AppName == "" {
			continue
		}
		channel, ok := r.table.Route(s.AppName)
		if !ok || channel >= len(sample) {
			continue
		}
		if err := r.backend.SetVolume(s, sample[channel]); err != nil {
			// the stream likely vanished between enumeration and write
			r.logger.Debug("volume set skipped",
				zap.Uint32("stream", s.Index),
				zap.String("app", s.AppName),
				zap.Error(err))
		}
	}
	return nil
}
