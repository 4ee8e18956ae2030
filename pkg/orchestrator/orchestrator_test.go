package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
	"github.com/seismoworks/tdvms-client/pkg/checkpoint"
	"github.com/seismoworks/tdvms-client/pkg/client"
	"github.com/seismoworks/tdvms-client/pkg/plan"
)

// fakeSubmitter returns its scripted errors in order, then succeeds.
type fakeSubmitter struct {
	errs  []error
	calls []plan.Batch
}

func (f *fakeSubmitter) Submit(_ context.Context, b plan.Batch, _, _ time.Time, _ string) error {
	f.calls = append(f.calls, b)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) CheckAndDownload(context.Context) error {
	f.calls++
	return f.err
}

func testPlan(batches int) *plan.Plan {
	p := &plan.Plan{
		Start: time.Date(2023, 2, 6, 1, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 2, 6, 3, 0, 0, 0, time.UTC),
	}
	for i := 0; i < batches; i++ {
		p.Batches = append(p.Batches, plan.Batch{
			Index:    i,
			Format:   plan.FormatMiniSEED,
			Stations: []catalog.Station{{Network: "TK", Code: fmt.Sprintf("S%02d", i), DeviceH: true}},
		})
	}
	return p
}

func newOrchestrator(t *testing.T, store checkpoint.Store, sub Submitter, conf Confirmer, notif Notifier) *Orchestrator {
	t.Helper()
	o, err := New(store, sub, conf, notif, Config{
		Email:         "user@example.org",
		RetryInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return o
}

func TestRunSubmitsAllBatches(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{}
	notif := &fakeNotifier{}
	o := newOrchestrator(t, store, sub, AutoApprove{}, notif)

	state, err := o.Run(context.Background(), "job", testPlan(3), checkpoint.State{Hash: "h"})
	require.NoError(t, err)

	assert.Equal(t, 3, state.Requested)
	require.Len(t, sub.calls, 3)
	for i, b := range sub.calls {
		assert.Equal(t, i, b.Index)
	}
	assert.Equal(t, 3, notif.calls)

	saved, found, err := store.Load("job")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, checkpoint.State{Hash: "h", Requested: 3}, saved)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{}
	o := newOrchestrator(t, store, sub, AutoApprove{}, &fakeNotifier{})

	state, err := o.Run(context.Background(), "job", testPlan(3), checkpoint.State{Hash: "h", Requested: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, state.Requested)
	require.Len(t, sub.calls, 1)
	assert.Equal(t, 2, sub.calls[0].Index)
}

func TestRunPersistsAfterEachSuccess(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	boom := errors.New("catalog gone")
	sub := &fakeSubmitter{errs: []error{nil, nil, boom}}
	o := newOrchestrator(t, store, sub, AutoApprove{}, &fakeNotifier{})

	state, err := o.Run(context.Background(), "job", testPlan(3), checkpoint.State{Hash: "h"})
	require.ErrorIs(t, err, boom)

	// Two successes persisted; the third batch is the recovery point.
	assert.Equal(t, 2, state.Requested)
	saved, _, _ := store.Load("job")
	assert.Equal(t, 2, saved.Requested)
}

func TestRunRetriesOnRetryableError(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{errs: []error{
		&client.RetryableError{Reason: client.ReasonBusy, ResultCode: client.ResultBusy, Message: "previous request still pending"},
		&client.RetryableError{Reason: client.ReasonConnection, Message: "connection failed"},
	}}
	o := newOrchestrator(t, store, sub, AutoApprove{}, &fakeNotifier{})

	state, err := o.Run(context.Background(), "job", testPlan(1), checkpoint.State{Hash: "h"})
	require.NoError(t, err)

	assert.Equal(t, 1, state.Requested)
	// Same batch attempted until accepted.
	require.Len(t, sub.calls, 3)
	for _, b := range sub.calls {
		assert.Equal(t, 0, b.Index)
	}
}

func TestRunTimeoutIsSoftSkip(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{errs: []error{client.ErrTimeout}}
	o, err := New(store, sub, AutoApprove{}, &fakeNotifier{}, Config{
		Email:         "user@example.org",
		RetryInterval: time.Second,
	})
	require.NoError(t, err)

	began := time.Now()
	state, err := o.Run(context.Background(), "job", testPlan(1), checkpoint.State{Hash: "h"})
	require.NoError(t, err)

	assert.Equal(t, 1, state.Requested)
	require.Len(t, sub.calls, 2)
	// No backoff wait between the timeout and the re-attempt.
	assert.Less(t, time.Since(began), time.Second)
}

func TestRunCancelDuringBackoff(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{errs: []error{
		&client.RetryableError{Reason: client.ReasonBusy, Message: "busy"},
	}}
	o, err := New(store, sub, AutoApprove{}, &fakeNotifier{}, Config{
		Email:         "user@example.org",
		RetryInterval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	state, err := o.Run(ctx, "job", testPlan(1), checkpoint.State{Hash: "h"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, state.Requested)
}

func TestRunManualConfirmationWithoutNotifier(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{}
	conf := &Interactive{In: strings.NewReader("y\nn\n"), Out: &strings.Builder{}}
	o := newOrchestrator(t, store, sub, conf, nil)

	state, err := o.Run(context.Background(), "job", testPlan(3), checkpoint.State{Hash: "h"})
	require.ErrorIs(t, err, ErrAborted)

	// First batch approved and submitted, second declined.
	assert.Equal(t, 1, state.Requested)
	require.Len(t, sub.calls, 1)
}

func TestRunSavesStateUpFront(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	o := newOrchestrator(t, store, &fakeSubmitter{}, AutoApprove{}, &fakeNotifier{})

	_, err := o.Run(context.Background(), "job", testPlan(0), checkpoint.State{Hash: "fresh"})
	require.NoError(t, err)

	saved, found, _ := store.Load("job")
	assert.True(t, found)
	assert.Equal(t, "fresh", saved.Hash)
}

func TestRunNotifierFailureIsNonFatal(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	notif := &fakeNotifier{err: errors.New("imap down")}
	o := newOrchestrator(t, store, &fakeSubmitter{}, AutoApprove{}, notif)

	state, err := o.Run(context.Background(), "job", testPlan(2), checkpoint.State{Hash: "h"})
	require.NoError(t, err)
	assert.Equal(t, 2, state.Requested)
	assert.Equal(t, 2, notif.calls)
}

func TestResolveCheckpointFresh(t *testing.T) {
	o := newOrchestrator(t, checkpoint.NewMemoryStore(), &fakeSubmitter{}, AutoDeny{}, nil)

	state, err := o.ResolveCheckpoint("job", "abc")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.State{Hash: "abc"}, state)
}

func TestResolveCheckpointSameHash(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Save("job", checkpoint.State{Hash: "abc", Requested: 5}))
	o := newOrchestrator(t, store, &fakeSubmitter{}, AutoDeny{}, nil)

	state, err := o.ResolveCheckpoint("job", "abc")
	require.NoError(t, err)
	assert.Equal(t, 5, state.Requested)
}

func TestResolveCheckpointDrift(t *testing.T) {
	t.Run("reset approved", func(t *testing.T) {
		store := checkpoint.NewMemoryStore()
		require.NoError(t, store.Save("job", checkpoint.State{Hash: "old", Requested: 5}))
		o := newOrchestrator(t, store, &fakeSubmitter{}, AutoApprove{}, nil)

		state, err := o.ResolveCheckpoint("job", "new")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.State{Hash: "new", Requested: 0}, state)
	})

	t.Run("reset declined", func(t *testing.T) {
		store := checkpoint.NewMemoryStore()
		require.NoError(t, store.Save("job", checkpoint.State{Hash: "old", Requested: 5}))
		o := newOrchestrator(t, store, &fakeSubmitter{}, AutoDeny{}, nil)

		_, err := o.ResolveCheckpoint("job", "new")
		require.ErrorIs(t, err, ErrAborted)

		// Declining leaves the stored state untouched.
		saved, _, _ := store.Load("job")
		assert.Equal(t, checkpoint.State{Hash: "old", Requested: 5}, saved)
	})
}

func TestNewValidation(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	sub := &fakeSubmitter{}

	_, err := New(nil, sub, AutoApprove{}, nil, DefaultConfig("a@b.c"))
	assert.Error(t, err)

	_, err = New(store, nil, AutoApprove{}, nil, DefaultConfig("a@b.c"))
	assert.Error(t, err)

	_, err = New(store, sub, nil, nil, DefaultConfig("a@b.c"))
	assert.Error(t, err)

	_, err = New(store, sub, AutoApprove{}, nil, DefaultConfig(""))
	assert.Error(t, err)

	o, err := New(store, sub, AutoApprove{}, nil, Config{Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, o.config.RetryInterval)
}
