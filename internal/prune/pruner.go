// Package prune reduces the account's active session list down to the newest entry.
//
// The session list lives on an external, uncontrolled resource with no
// authoritative removal acknowledgment. [Pruner] therefore verifies each
// removal heuristically (an acknowledged confirmation, or the removal action
// disappearing on re-check), re-reads the list after every removal, and stops
// as soon as an iteration makes no progress. A non-decreasing count is a
// stop signal, never an error.
package prune

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// MaxIterations bounds the number of list passes per [Pruner.Prune] call.
const MaxIterations = 20

// CreatedAtLayout is the timestamp format exposed by the session directory.
const CreatedAtLayout = "2006-01-02 15:04:05"

// Entry is one session as currently listed by the directory. Entries are
// transient: they are fetched fresh on every pass and never cached.
type Entry struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Removable bool   `json:"removable"`
}

// Directory is the external session list being pruned.
type Directory interface {
	// List returns the sessions currently shown for the account.
	List(ctx context.Context) ([]Entry, error)

	// Remove triggers the entry's removal action. confirmed reports whether an
	// interactive confirmation was presented and acknowledged.
	Remove(ctx context.Context, entry Entry) (confirmed bool, err error)

	// Removable re-checks whether the entry still exposes its removal action.
	Removable(ctx context.Context, entry Entry) (bool, error)
}

// Result summarizes one pruning call.
type Result struct {
	// Deleted counts removals that passed verification.
	Deleted int `json:"deleted"`

	// Iterations counts directory list passes performed.
	Iterations int `json:"iterations"`
}

// Pruner removes every session except the newest.
type Pruner struct {
	clock  clockwork.Clock
	settle time.Duration
	log    logrus.FieldLogger
}

// NewPruner creates a pruner. settle is waited on clock after each verified
// removal so the directory can reflect it before the next listing; zero
// disables the wait.
func NewPruner(clock clockwork.Clock, settle time.Duration, log logrus.FieldLogger) *Pruner {
	return &Pruner{clock: clock, settle: settle, log: log}
}

type parsedEntry struct {
	entry   Entry
	created time.Time
}

// Prune runs the bounded removal loop against dir.
//
// A listing error aborts the loop and is returned together with the partial
// result. Removal and re-check errors only mean the attempt did not count,
// which ends the loop.
func (p *Pruner) Prune(ctx context.Context, dir Directory) (Result, error) {
	var res Result

	for res.Iterations < MaxIterations {
		entries, err := dir.List(ctx)
		res.Iterations++
		if err != nil {
			return res, fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(entries) <= 1 {
			return res, nil
		}

		parsed := parseEntries(entries, p.log)
		if len(parsed) < 2 {
			return res, nil
		}

		sort.SliceStable(parsed, func(i, j int) bool {
			return parsed[i].created.Before(parsed[j].created)
		})
		newest := parsed[len(parsed)-1]
		candidates := parsed[:len(parsed)-1]

		removed := p.removeFirst(ctx, dir, candidates)
		if !removed {
			p.log.WithField("remaining", len(entries)).Info("No removable session left, stopping")
			return res, nil
		}
		res.Deleted++
		p.log.WithFields(logrus.Fields{
			"deleted": res.Deleted,
			"kept":    newest.entry.CreatedAt,
		}).Debug("Removed session")

		if p.settle > 0 {
			select {
			case <-p.clock.After(p.settle):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
	}

	return res, nil
}

// removeFirst attempts the oldest candidate exposing a removal action.
func (p *Pruner) removeFirst(ctx context.Context, dir Directory, candidates []parsedEntry) bool {
	for _, c := range candidates {
		if !c.entry.Removable {
			continue
		}

		log := p.log.WithFields(logrus.Fields{"session": c.entry.ID, "created_at": c.entry.CreatedAt})

		confirmed, err := dir.Remove(ctx, c.entry)
		if err != nil {
			log.WithError(err).Warn("Session removal failed")
			return false
		}
		if confirmed {
			return true
		}

		stillRemovable, err := dir.Removable(ctx, c.entry)
		if err != nil {
			log.WithError(err).Warn("Session removal could not be verified")
			return false
		}
		if stillRemovable {
			log.Warn("Session still shows its removal action")
			return false
		}
		return true
	}
	return false
}

func parseEntries(entries []Entry, log logrus.FieldLogger) []parsedEntry {
	parsed := make([]parsedEntry, 0, len(entries))
	for _, e := range entries {
		created, err := time.Parse(CreatedAtLayout, e.CreatedAt)
		if err != nil {
			log.WithField("created_at", e.CreatedAt).Debug("Skipping session with unparseable timestamp")
			continue
		}
		parsed = append(parsed, parsedEntry{entry: e, created: created})
	}
	return parsed
}
