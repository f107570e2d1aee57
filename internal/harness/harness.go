// Package harness runs YAML scenarios against a real store.
//
// Each run builds a fresh store over the scenario's app slices, a fixture
// HTTP backend for the thunks, deterministic flow tokens, and a commit
// hook that records the trace. Steps are dispatched on the calling
// goroutine, which owns the store; thunk steps are awaited before the next
// step starts, so traces are reproducible.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/relay/internal/api"
	"github.com/roach88/relay/internal/apps"
	"github.com/roach88/relay/internal/apps/auth"
	"github.com/roach88/relay/internal/apps/blog"
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
	"github.com/roach88/relay/internal/testutil"
)

// DefaultAccount is the user the auth provider signs in when a scenario
// names none.
const DefaultAccount = "test-user"

// Harness is the per-run execution state.
type Harness struct {
	store   *store.Store
	backend *testutil.Backend
	deps    *Deps
	result  *Result
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	hooks  []store.CommitHook
}

// WithLogger sets the logger for the run (default: discard).
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithCommitHook adds a commit hook next to the trace recorder, e.g. a
// journal.
func WithCommitHook(hook store.CommitHook) Option {
	return func(c *runConfig) {
		c.hooks = append(c.hooks, hook)
	}
}

// Run executes a scenario and returns the result.
//
// A returned error means the scenario could not be set up; step and
// assertion failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}

	root, err := apps.Root(scenario.Apps...)
	if err != nil {
		return nil, fmt.Errorf("build root reducer: %w", err)
	}

	seed, err := backendData(scenario.Backend)
	if err != nil {
		return nil, err
	}
	backend := testutil.NewBackend(seed)
	defer backend.Close()

	client, err := api.New(backend.URL(), api.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	account := scenario.Account
	if account == "" {
		account = DefaultAccount
	}

	result := NewResult()
	storeOpts := []store.Option{
		store.WithMiddleware(store.Logger(cfg.logger), store.ThunkMiddleware()),
		store.WithFlowGenerator(flowGenerator(scenario)),
		store.WithLogger(cfg.logger),
		store.WithCommitHook(func(_ context.Context, c store.Commit) error {
			result.AddTrace(traceEventOf(c))
			return nil
		}),
	}
	for _, hook := range cfg.hooks {
		storeOpts = append(storeOpts, store.WithCommitHook(hook))
	}
	if scenario.MaxSteps > 0 {
		storeOpts = append(storeOpts, store.WithMaxSteps(scenario.MaxSteps))
	}

	st, err := store.New(root, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	defer st.Close()

	unsubscribe := st.Subscribe(func() { result.Notifications++ })
	defer unsubscribe()

	h := &Harness{
		store:   st,
		backend: backend,
		deps: &Deps{
			API:      client,
			Provider: auth.NewMemoryProvider(account),
			Users:    blog.NewUserFetcher(client),
		},
		result: result,
		logger: cfg.logger,
	}

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result.State = st.GetState()
	hash, err := ir.StateHash(result.State)
	if err != nil {
		return nil, fmt.Errorf("hash final state: %w", err)
	}
	result.StateHash = hash
	result.Requests = backend.Requests()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeFlow runs the steps in order. A step whose outcome does not match
// its expectation is recorded as a failure and the flow continues.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		sr := StepResult{Index: i, Kind: step.Kind()}

		var stepErr error
		switch sr.Kind {
		case StepDispatch:
			sr.Name = step.Dispatch
			payload, err := ir.FromGo(step.Payload)
			if err != nil {
				return fmt.Errorf("flow step %d: payload: %w", i, err)
			}
			f := h.store.Dispatch(ctx, store.NewAction(step.Dispatch, payload))
			sr.Flow = f.Flow()
			stepErr = f.Err()

		case StepThunk:
			sr.Name = step.Thunk
			args, err := toIRArray(step.Args)
			if err != nil {
				return fmt.Errorf("flow step %d: args: %w", i, err)
			}
			thunk, err := BuildThunk(step.Thunk, h.deps, args)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			f := h.store.Dispatch(ctx, thunk)
			sr.Flow = f.Flow()
			stepErr = h.store.Await(ctx, f)
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(stepErr, ctxErr) {
				return fmt.Errorf("flow step %d: %w", i, ctxErr)
			}

		case StepFail:
			sr.Name = step.Fail.Method + " " + step.Fail.Path
			h.backend.Fail(step.Fail.Method, step.Fail.Path, step.Fail.Status)

		default:
			return fmt.Errorf("flow step %d: invalid step", i)
		}

		if stepErr != nil {
			sr.Error = stepErr.Error()
		}
		h.result.Steps = append(h.result.Steps, sr)
		h.checkStep(step, sr, stepErr)

		h.logger.Debug("flow step completed",
			"step", i,
			"kind", sr.Kind,
			"name", sr.Name,
			"flow", sr.Flow,
			"error", sr.Error,
		)
	}
	return nil
}

func (h *Harness) checkStep(step FlowStep, sr StepResult, err error) {
	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s %s: unexpected error: %v", sr.Index, sr.Kind, sr.Name, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("flow[%d] %s %s: expected error containing %q, got success", sr.Index, sr.Kind, sr.Name, step.ExpectError))
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		h.result.AddError(fmt.Sprintf("flow[%d] %s %s: expected error containing %q, got %v", sr.Index, sr.Kind, sr.Name, step.ExpectError, err))
	}
}

func flowGenerator(s *Scenario) store.FlowGenerator {
	if s.FlowToken != "" {
		return testutil.NewFixedFlowGenerator(s.FlowToken)
	}
	return testutil.NewSequenceFlowGenerator(s.FlowPrefix)
}

func backendData(seed *BackendSeed) (testutil.BackendData, error) {
	if seed == nil {
		return testutil.DefaultBackendData(), nil
	}
	var data testutil.BackendData
	var err error
	if data.Posts, err = toIRArray(seed.Posts); err != nil {
		return data, fmt.Errorf("backend.posts: %w", err)
	}
	if data.Users, err = toIRArray(seed.Users); err != nil {
		return data, fmt.Errorf("backend.users: %w", err)
	}
	if data.Streams, err = toIRArray(seed.Streams); err != nil {
		return data, fmt.Errorf("backend.streams: %w", err)
	}
	return data, nil
}
