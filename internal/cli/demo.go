package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/relay/internal/api"
	"github.com/roach88/relay/internal/apps"
	"github.com/roach88/relay/internal/apps/auth"
	"github.com/roach88/relay/internal/apps/blog"
	"github.com/roach88/relay/internal/apps/songs"
	"github.com/roach88/relay/internal/apps/streams"
	"github.com/roach88/relay/internal/config"
	"github.com/roach88/relay/internal/connect"
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/journal"
	"github.com/roach88/relay/internal/store"
)

// DemoAccount is the user the demo auth provider signs in.
const DemoAccount = "relay-demo"

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	NoJournal  bool
}

// DemoResult holds the outcome of a demo run.
type DemoResult struct {
	App       string      `json:"app"`
	Flows     []string    `json:"flows"`
	Commits   int         `json:"commits"`
	LastSeq   int64       `json:"last_seq"`
	Renders   int         `json:"renders,omitempty"`
	Journal   string      `json:"journal,omitempty"`
	StateHash string      `json:"state_hash"`
	State     ir.IRObject `json:"state"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:       "demo <songs|auth|blog|streams>",
		Short:     "Run an example app flow against the configured API",
		ValidArgs: apps.Names(),
		Long: `Build a store over every app slice, run the named app's flow and
print the final state.

Commits are appended to the journal (journal.path, or --db). A journal
that already holds commits is replayed first, so consecutive runs extend
one history that "relay replay" can verify.

Flows:
  songs    select every catalog song through a connected view
  auth     track the auth provider while signing in
  blog     fetch posts, then each distinct author once (api.blog_url)
  streams  sign in, fetch streams and create one (api.streams_url)

Examples:
  relay demo songs
  relay demo blog --config ./relay.cue
  relay demo streams --db /tmp/relay.db --format json`,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "config file (default: relay.cue or relay.toml in the working directory)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal path (overrides journal.path)")
	cmd.Flags().BoolVar(&opts.NoJournal, "no-journal", false, "do not record commits")

	return cmd
}

func runDemo(opts *DemoOptions, app string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Journal.Path = opts.Database
	}
	logger := opts.LoggerAt(cmd, cfg.SlogLevel())

	root, err := apps.Root()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build root reducer", err)
	}

	result := &DemoResult{App: app, Flows: []string{}}
	storeOpts := []store.Option{
		store.WithMiddleware(store.Logger(logger), store.ThunkMiddleware()),
		store.WithLogger(logger),
		store.WithMaxSteps(cfg.Store.MaxSteps),
		store.WithCommitHook(func(_ context.Context, c store.Commit) error {
			result.Commits++
			result.LastSeq = c.Seq
			if n := len(result.Flows); n == 0 || result.Flows[n-1] != c.Flow {
				result.Flows = append(result.Flows, c.Flow)
			}
			return nil
		}),
	}

	if !opts.NoJournal {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()

		// Continue the recorded history rather than starting a second one.
		replayed, err := j.Replay(ctx, root)
		if err != nil {
			return WrapExitError(ExitFailure, "journal does not replay against the current reducers", err)
		}
		storeOpts = append(storeOpts,
			store.WithPreloadedState(replayed.State),
			store.WithClock(store.NewClockAt(replayed.LastSeq)),
			store.WithCommitHook(j.Hook()),
		)
		result.Journal = cfg.Journal.Path
		result.LastSeq = replayed.LastSeq
	}

	st, err := store.New(root, storeOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create store", err)
	}
	defer st.Close()

	d := &demo{store: st, cfg: cfg, logger: logger, out: cmd.ErrOrStderr(), verbose: opts.Verbose}
	switch app {
	case apps.Songs:
		err = d.songs(ctx, result)
	case apps.Auth:
		err = d.auth(ctx)
	case apps.Blog:
		err = d.blog(ctx)
	case apps.Streams:
		err = d.streams(ctx)
	}
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s demo failed", app), err)
	}

	result.State = st.GetState()
	if result.StateHash, err = ir.StateHash(result.State); err != nil {
		return WrapExitError(ExitCommandError, "failed to hash state", err)
	}

	return outputDemo(cmd, opts, result)
}

// loadConfig reads path, or looks for a config file in the working
// directory when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Find(".")
	}
	return config.Load(path)
}

type demo struct {
	store   *store.Store
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	verbose bool
}

func (d *demo) client(baseURL string) (*api.Client, error) {
	return api.New(baseURL, api.WithTimeout(d.cfg.Timeout()), api.WithLogger(d.logger))
}

// run dispatches on the owner goroutine and pumps the queue until the
// dispatch completes.
func (d *demo) run(ctx context.Context, dispatchable store.Dispatchable) error {
	return d.store.Await(ctx, d.store.Dispatch(ctx, dispatchable))
}

func (d *demo) songs(ctx context.Context, result *DemoResult) error {
	selectTitle := func(state ir.IRObject, _ ir.IRValue) ir.IRValue {
		selected, _ := songs.Selected(state).(ir.IRObject)
		return selected.Get("title")
	}
	actions := map[string]connect.ActionCreator{
		"select": func(args ...ir.IRValue) store.Dispatchable {
			return songs.SelectSong(args[0])
		},
	}
	view := func(props ir.IRValue, _ *connect.Actions) {
		if d.verbose {
			fmt.Fprintf(d.out, "render: selected=%s\n", render(props))
		}
	}

	conn, err := connect.Connect(d.store, selectTitle, actions, view, connect.WithLogger(d.logger))
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	for _, s := range songs.List(d.store.GetState()) {
		f, err := conn.Actions().Call("select", s)
		if err != nil {
			return err
		}
		if err := d.store.Await(ctx, f); err != nil {
			return err
		}
	}
	result.Renders = conn.Renders()
	return nil
}

func (d *demo) auth(ctx context.Context) error {
	provider := auth.NewMemoryProvider(DemoAccount)

	trackCtx, stopTracking := context.WithCancel(ctx)
	defer stopTracking()
	tracking := d.store.Dispatch(trackCtx, auth.TrackSignIn(provider))

	unsubscribe := d.store.Subscribe(func() {
		if status, _ := auth.StatusOf(d.store.GetState()); status == auth.StatusSignedIn {
			stopTracking()
		}
	})
	defer unsubscribe()

	if err := d.run(ctx, auth.RequestSignIn(provider)); err != nil {
		return err
	}
	return d.store.Await(ctx, tracking)
}

func (d *demo) blog(ctx context.Context) error {
	client, err := d.client(d.cfg.API.BlogURL)
	if err != nil {
		return err
	}
	return d.run(ctx, blog.NewUserFetcher(client).FetchPostsAndUsers())
}

func (d *demo) streams(ctx context.Context) error {
	client, err := d.client(d.cfg.API.StreamsURL)
	if err != nil {
		return err
	}
	provider := auth.NewMemoryProvider(DemoAccount)

	for _, step := range []store.Thunk{
		auth.RequestSignIn(provider),
		auth.CheckSignIn(provider),
		streams.FetchStreams(client),
		streams.CreateStream(client, ir.Obj(
			ir.O("title", ir.IRString("relay demo")),
			ir.O("description", ir.IRString("created by relay demo")),
		)),
	} {
		if err := d.run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func outputDemo(cmd *cobra.Command, opts *DemoOptions, result *DemoResult) error {
	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Respond(result, nil)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s demo: %d commit(s) across %d flow(s), last seq %d\n",
		result.App, result.Commits, len(result.Flows), result.LastSeq)
	if result.Renders > 0 {
		fmt.Fprintf(w, "  Renders: %d\n", result.Renders)
	}
	if result.Journal != "" {
		fmt.Fprintf(w, "  Journal: %s\n", result.Journal)
	}
	fmt.Fprintf(w, "  State hash: %s\n", result.StateHash)
	fmt.Fprintf(w, "  State: %s\n", render(result.State))
	return nil
}

func render(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
