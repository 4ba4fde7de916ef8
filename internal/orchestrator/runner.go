// Package orchestrator runs the updater over a batch of repositories.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jayteealao/gitup/internal/discover"
	"github.com/jayteealao/gitup/internal/update"
	"github.com/jayteealao/gitup/internal/validate"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of repositories updated at once.
const DefaultConcurrency = 4

// RepoUpdater updates a single repository.
type RepoUpdater interface {
	Update(ctx context.Context, path string, opts update.Options) update.Outcome
}

// Ensure update.Updater implements RepoUpdater
var _ RepoUpdater = (*update.Updater)(nil)

// RunOptions contains options for a batch run.
type RunOptions struct {
	Update      update.Options
	Concurrency int
	OnOutcome   func(out update.Outcome) // Called as each repository finishes
	OnVerbose   func(msg string)         // Callback for verbose messages
}

// Report is the result of a batch run, in discovery order.
type Report struct {
	Outcomes   []update.Outcome `json:"outcomes"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	// Stopped is set when the run was interrupted before every repository started.
	Stopped bool `json:"stopped"`
}

// Success reports whether every repository ended in a success outcome.
func (r *Report) Success() bool {
	for _, o := range r.Outcomes {
		if !o.Kind.IsSuccess() {
			return false
		}
	}
	return true
}

// Failed returns the number of non-success outcomes.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Kind.IsSuccess() {
			n++
		}
	}
	return n
}

// Counts tallies outcomes by kind.
func (r *Report) Counts() map[update.Kind]int {
	counts := make(map[update.Kind]int)
	for _, o := range r.Outcomes {
		counts[o.Kind]++
	}
	return counts
}

// Runner runs the updater over many repositories.
type Runner struct {
	updater RepoUpdater
}

// NewRunner creates a Runner.
func NewRunner(updater RepoUpdater) *Runner {
	return &Runner{updater: updater}
}

// Run updates every target and returns one outcome per target, in target order.
//
// Cancelling ctx stops new repositories from starting. Repositories already
// being updated run to completion so none is left half-rebased; the rest are
// reported as Stopped.
func (r *Runner) Run(ctx context.Context, targets []discover.Target, opts RunOptions) (*Report, error) {
	if err := opts.Update.Validate(); err != nil {
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if err := validate.Concurrency(concurrency); err != nil {
		return nil, err
	}

	onVerbose := opts.OnVerbose
	if onVerbose == nil {
		onVerbose = func(msg string) {}
	}
	if opts.Update.OnVerbose == nil {
		opts.Update.OnVerbose = onVerbose
	}

	report := &Report{
		Outcomes:  make([]update.Outcome, len(targets)),
		StartedAt: time.Now(),
	}
	finished := make([]bool, len(targets))

	var mu sync.Mutex
	emit := func(i int, out update.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		report.Outcomes[i] = out
		finished[i] = true
		if opts.OnOutcome != nil {
			opts.OnOutcome(out)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, target := range targets {
		if target.Missing {
			emit(i, update.Outcome{Path: target.Path, Kind: update.NotARepo, Detail: target.Reason})
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		g.Go(func() error {
			// The slot may have been granted after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			emit(i, r.updateOne(context.WithoutCancel(ctx), target.Path, opts.Update, onVerbose))
			return nil
		})
	}

	_ = g.Wait()

	for i, target := range targets {
		if !finished[i] {
			report.Outcomes[i] = update.Outcome{Path: target.Path, Kind: update.Stopped}
			report.Stopped = true
		}
	}
	report.FinishedAt = time.Now()

	return report, nil
}

// updateOne isolates a failing updater so the rest of the batch continues.
func (r *Runner) updateOne(ctx context.Context, path string, opts update.Options, onVerbose func(string)) (out update.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			onVerbose(fmt.Sprintf("%s: recovered panic: %v", path, rec))
			out = update.Outcome{Path: path, Kind: update.Unknown, Detail: fmt.Sprintf("internal error: %v", rec)}
		}
	}()

	onVerbose(fmt.Sprintf("Updating %s...", path))
	return r.updater.Update(ctx, path, opts)
}
