// Package orchestrator drives the batch submission loop: resolve the
// checkpoint, submit each unrequested batch, persist progress after
// every success, and wait out transient failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/seismoworks/tdvms-client/pkg/checkpoint"
	"github.com/seismoworks/tdvms-client/pkg/client"
	"github.com/seismoworks/tdvms-client/pkg/logging"
	"github.com/seismoworks/tdvms-client/pkg/plan"
)

// Prometheus metrics for the submission loop.
var (
	batchesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdvms_batches_submitted_total",
		Help: "Total batches submitted successfully",
	})

	retryWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tdvms_retry_waits_total",
		Help: "Backoff waits by retry reason",
	}, []string{"reason"})

	timeoutSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdvms_submission_timeouts_total",
		Help: "Submissions skipped softly due to timeout",
	})
)

// ErrAborted is returned when the user declines a confirmation and the
// run stops with no side effects.
var ErrAborted = errors.New("run aborted by user")

// Submitter is the remote submission boundary, implemented by
// pkg/client. Submit returns nil only for an unambiguous acceptance.
type Submitter interface {
	Submit(ctx context.Context, b plan.Batch, start, end time.Time, email string) error
}

// Notifier is an optional inbox watcher invoked after each accepted
// batch, implemented by pkg/mail. Notifier failures never affect
// orchestrator state.
type Notifier interface {
	CheckAndDownload(ctx context.Context) error
}

// Config holds the orchestrator configuration.
type Config struct {
	// Email receives the fulfillment links.
	Email string

	// RetryInterval is the fixed wait between attempts on a retryable
	// failure. The retry is unbounded: the service allows one
	// outstanding request, so waiting is the only way forward.
	RetryInterval time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig(email string) Config {
	return Config{
		Email:         email,
		RetryInterval: 60 * time.Second,
	}
}

// Orchestrator runs the submission loop for one configuration name.
// One instance per configuration name is assumed; concurrent runs
// against the same name would race on the checkpoint.
type Orchestrator struct {
	store     checkpoint.Store
	submitter Submitter
	confirmer Confirmer
	notifier  Notifier
	config    Config
	logger    zerolog.Logger
}

// New creates an orchestrator. notifier may be nil, in which case the
// confirmer gates every batch instead.
func New(store checkpoint.Store, submitter Submitter, confirmer Confirmer, notifier Notifier, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if confirmer == nil {
		return nil, fmt.Errorf("confirmer is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("email address is required")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 60 * time.Second
	}

	return &Orchestrator{
		store:     store,
		submitter: submitter,
		confirmer: confirmer,
		notifier:  notifier,
		config:    cfg,
		logger:    logging.NewLogger("orchestrator"),
	}, nil
}

// ResolveCheckpoint loads the stored state for name and reconciles it
// with the hash of the current configuration bytes. A hash mismatch
// asks the confirmer whether to reset; declining returns ErrAborted
// with the stored state untouched. A fresh start returns a zero state.
func (o *Orchestrator) ResolveCheckpoint(name, configHash string) (checkpoint.State, error) {
	state, found, err := o.store.Load(name)
	if err != nil {
		return checkpoint.State{}, err
	}
	if !found {
		return checkpoint.State{Hash: configHash}, nil
	}

	if state.Hash != configHash {
		ok, err := o.confirmer.Confirm("Config file seems to be changed! Do you want to reset the state?")
		if err != nil {
			return checkpoint.State{}, err
		}
		if !ok {
			return checkpoint.State{}, ErrAborted
		}
		o.logger.Warn().Str("name", name).Msg("Configuration drift confirmed, checkpoint reset")
		return checkpoint.State{Hash: configHash}, nil
	}

	o.logger.Debug().
		Str("name", name).
		Int("requested", state.Requested).
		Msg("Checkpoint resumed")
	return state, nil
}

// Run submits every unrequested batch of the plan in order, starting at
// state.Requested. It returns the final state; on error the returned
// state reflects the last persisted progress, which is the recovery
// point of the next run.
func (o *Orchestrator) Run(ctx context.Context, name string, p *plan.Plan, state checkpoint.State) (checkpoint.State, error) {
	total := p.Total()
	o.logger.Info().
		Int("stations", len(p.Stations)).
		Int("total", total).
		Int("requested", state.Requested).
		Int("remaining", total-state.Requested).
		Msg("Starting submission loop")

	// Record the (possibly reset) state before the first submission so
	// a fresh hash is persisted even if the run dies immediately.
	if err := o.store.Save(name, state); err != nil {
		return state, err
	}

	for state.Requested < total {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		// Without a notifier the pace is manual: ask before each batch.
		if o.notifier == nil {
			ok, err := o.confirmer.Confirm("Request the next batch?")
			if err != nil {
				return state, err
			}
			if !ok {
				return state, ErrAborted
			}
		}

		b := p.Batches[state.Requested]
		err := o.submitter.Submit(ctx, b, p.Start, p.End, o.config.Email)

		switch {
		case err == nil:
			state.Requested++
			batchesSubmitted.Inc()
			if err := o.store.Save(name, state); err != nil {
				return state, err
			}
			o.logger.Info().
				Int("batch", b.Index).
				Str("format", string(b.Format)).
				Int("requested", state.Requested).
				Int("total", total).
				Msg("Batch accepted")

			if o.notifier != nil {
				if err := o.notifier.CheckAndDownload(ctx); err != nil {
					o.logger.Error().Err(err).Msg("Inbox check failed")
				}
			}

		case errors.Is(err, client.ErrTimeout):
			// Soft skip: no backoff, no checkpoint advance. The next
			// loop iteration attempts the same batch again.
			timeoutSkips.Inc()
			o.logger.Warn().Int("batch", b.Index).Msg("Request timed out")

		case client.IsRetryable(err):
			var re *client.RetryableError
			errors.As(err, &re)
			retryWaits.WithLabelValues(string(re.Reason)).Inc()
			o.logger.Warn().
				Int("batch", b.Index).
				Str("reason", string(re.Reason)).
				Int("result_code", re.ResultCode).
				Dur("backoff", o.config.RetryInterval).
				Msg("Submission failed, waiting before retry")
			if err := o.sleep(ctx); err != nil {
				return state, err
			}

		default:
			// Missing-device errors and other unclassified failures are
			// fatal. The last persisted checkpoint stands.
			return state, err
		}
	}

	o.logger.Info().Int("total", total).Msg("All batches requested")
	return state, nil
}

// sleep waits the retry interval, honoring cancellation.
func (o *Orchestrator) sleep(ctx context.Context) error {
	timer := time.NewTimer(o.config.RetryInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
