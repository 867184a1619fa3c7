package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/kettleworks/storysync/internal/config"
	"github.com/kettleworks/storysync/internal/device"
	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/progress"
	"github.com/kettleworks/storysync/internal/remote"
	"github.com/kettleworks/storysync/internal/store"
	syncpkg "github.com/kettleworks/storysync/internal/sync"
	"github.com/kettleworks/storysync/internal/ui"
	"github.com/kettleworks/storysync/internal/ui/tui"
)

// env bundles everything a command needs to talk to the local store and
// the remote.
type env struct {
	cfg      *config.Config
	store    *store.Store
	identity device.Identity
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// saveConfig writes the config back to wherever it was loaded from.
func saveConfig(cmd *cli.Command, cfg *config.Config) error {
	if path := cmd.String("config"); path != "" {
		return cfg.SaveToPath(path)
	}
	return cfg.Save()
}

// openEnv loads config, the local store, and the device identity.
// Callers must Close the returned env.
func openEnv(cmd *cli.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, err
	}

	identity, err := device.NewManager(cfg.DataDir()).Load()
	if err != nil {
		s.Close()
		return nil, err
	}

	return &env{cfg: cfg, store: s, identity: identity}, nil
}

func (e *env) Close() {
	e.store.Close()
}

// remoteStore connects to the configured object-store backend.
func (e *env) remoteStore() (remote.Store, error) {
	if !e.cfg.IsRemoteConfigured() {
		return nil, errors.New("no remote configured; set remote.endpoint and remote.bucket (storysync settings set remote.endpoint ...)")
	}
	return remote.NewMinioStore(e.cfg.MinioConfig())
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a sync round against the remote",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Bypass the minimum interval between rounds",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Compute and show the plan without transferring",
			},
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   "Conflict strategy for this round (ask, local-wins, remote-wins, newest-wins)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			rs, err := e.remoteStore()
			if err != nil {
				return err
			}

			strategy := e.cfg.GetStrategy()
			if s := cmd.String("strategy"); s != "" {
				strategy = syncpkg.Strategy(s)
				if !strategy.IsValid() {
					return fmt.Errorf("unknown strategy %q; valid: %v", s, syncpkg.AllStrategies())
				}
			}

			opts := syncpkg.Options{
				Strategy: strategy,
				BlobDir:  e.cfg.BlobDir(),
			}
			if strategy == syncpkg.StrategyAsk {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return errors.New("strategy \"ask\" needs an interactive terminal; pick another strategy")
				}
				opts.Decide = tui.Decider()
			}

			var bar *progress.Bar
			if !cmd.Bool("dry-run") {
				bar = progress.Simple(100, "Syncing")
				opts.OnProgress = bar.Observer()
			}

			engine := syncpkg.NewEngine(e.store, rs, e.identity, opts)
			res := engine.Sync(ctx, syncpkg.RunOptions{
				Force:  cmd.Bool("force"),
				DryRun: cmd.Bool("dry-run"),
			})
			if bar != nil {
				_ = bar.Clear()
			}

			printResult(res)
			if !res.Success {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run scheduled sync rounds until interrupted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cfg.Sync.Enabled {
				return errors.New("sync is disabled; enable it with: storysync settings set sync.auto true")
			}

			rs, err := e.remoteStore()
			if err != nil {
				return err
			}

			engine := syncpkg.NewEngine(e.store, rs, e.identity, syncpkg.Options{
				Strategy: nonInteractive(e.cfg.GetStrategy()),
				BlobDir:  e.cfg.BlobDir(),
			})

			sched := syncpkg.NewScheduler(engine, syncpkg.SchedulerOptions{
				SyncOnStartup: e.cfg.Sync.SyncOnStartup,
				Interval:      e.cfg.Interval(),
			})
			sched.Start(ctx)
			defer sched.Stop()

			fmt.Printf("Watching; syncing every %s. Ctrl-C to stop.\n", e.cfg.Interval())

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sig:
			case <-ctx.Done():
			}
			return nil
		},
	}
}

// nonInteractive downgrades the ask strategy for unattended rounds,
// where nobody can answer; conflicting items are settled by timestamp.
func nonInteractive(s syncpkg.Strategy) syncpkg.Strategy {
	if s == syncpkg.StrategyAsk {
		return syncpkg.StrategyNewestWins
	}
	return s
}

func printResult(res *syncpkg.Result) {
	if res.Success {
		fmt.Println(ui.StatusSuccess(res.Summary()))
	} else {
		fmt.Println(ui.StatusError(res.Summary()))
	}

	for _, cat := range model.Categories() {
		c := res.Counts[cat]
		if c.Uploaded == 0 && c.Downloaded == 0 && c.Deleted == 0 {
			continue
		}
		fmt.Printf("  %-12s %s\n", cat.PluralKey(),
			ui.TransferCounts(c.Uploaded, c.Downloaded, c.Deleted))
	}

	for _, err := range res.Errors {
		fmt.Println("  " + ui.Error(err.Error()))
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show sync state, device identity, and local record counts",
		Action: func(_ context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Println(ui.Header("Device"))
			fmt.Printf("  %s (%s)\n", e.identity.Name, ui.Dim(e.identity.ID))

			fmt.Println(ui.Header("Remote"))
			if e.cfg.IsRemoteConfigured() {
				fmt.Printf("  %s/%s", e.cfg.Remote.Endpoint, e.cfg.Remote.Bucket)
				if e.cfg.Remote.Prefix != "" {
					fmt.Printf(" (prefix %s)", e.cfg.Remote.Prefix)
				}
				fmt.Println()
			} else {
				fmt.Println("  " + ui.Warning("not configured"))
			}

			fmt.Println(ui.Header("Sync"))
			fmt.Printf("  strategy: %s\n", e.cfg.GetStrategy())
			fmt.Printf("  interval: %s (auto sync %s)\n",
				e.cfg.Interval(), enabledLabel(e.cfg.Sync.AutoSync))
			if last, err := e.store.LastSyncAt(); err == nil && !last.IsZero() {
				fmt.Printf("  last synced: %s\n", last.Local().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Println("  last synced: " + ui.Dim("never"))
			}
			if v, err := e.store.ManifestVersion(); err == nil && v > 0 {
				fmt.Printf("  manifest version: %d\n", v)
			}

			fmt.Println(ui.Header("Records"))
			for _, cat := range model.Categories() {
				docs, err := e.store.ListDocuments(cat)
				if err != nil {
					return err
				}
				fmt.Printf("  %-12s %d\n", cat.PluralKey(), len(docs))
			}
			if pending := e.store.Tombstones(); len(pending) > 0 {
				fmt.Printf("  %-12s %d\n", "deletions", len(pending))
			}
			return nil
		},
	}
}

func enabledLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Inspect and change configuration",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the current configuration",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					printSettings(cfg)
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Change one setting and persist it",
				UsageText: "storysync settings set <key> <value>",
				Description: `Keys:
   sync.strategy     ask | local-wins | remote-wins | newest-wins
   sync.interval     5 | 15 | 30 | 60 (minutes)
   sync.auto         true | false
   sync.on_startup   true | false
   remote.endpoint   host[:port]
   remote.bucket     bucket name
   remote.prefix     key prefix
   remote.access_key / remote.secret_key`,
				Action: func(_ context.Context, cmd *cli.Command) error {
					args := cmd.Args()
					if args.Len() != 2 {
						return errors.New("settings set requires exactly 2 arguments: <key> <value>")
					}

					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					if err := applySetting(cfg, args.Get(0), args.Get(1)); err != nil {
						return err
					}
					if err := saveConfig(cmd, cfg); err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess(fmt.Sprintf("%s = %s", args.Get(0), args.Get(1))))
					return nil
				},
			},
		},
	}
}

func printSettings(cfg *config.Config) {
	fmt.Printf("sync.strategy     %s\n", cfg.GetStrategy())
	fmt.Printf("sync.interval     %d\n", cfg.Sync.IntervalMinutes)
	fmt.Printf("sync.auto         %v\n", cfg.Sync.AutoSync)
	fmt.Printf("sync.on_startup   %v\n", cfg.Sync.SyncOnStartup)
	fmt.Printf("remote.endpoint   %s\n", cfg.Remote.Endpoint)
	fmt.Printf("remote.bucket     %s\n", cfg.Remote.Bucket)
	fmt.Printf("remote.prefix     %s\n", cfg.Remote.Prefix)
	fmt.Printf("storage.data_dir  %s\n", cfg.DataDir())
}

// applySetting routes a dotted key to its config field, validating the
// value.
func applySetting(cfg *config.Config, key, value string) error {
	switch key {
	case "sync.strategy":
		if !syncpkg.Strategy(value).IsValid() {
			return fmt.Errorf("unknown strategy %q; valid: %v", value, syncpkg.AllStrategies())
		}
		cfg.Sync.ConflictStrategy = value
	case "sync.interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("interval must be a number of minutes: %w", err)
		}
		switch n {
		case 5, 15, 30, 60:
			cfg.Sync.IntervalMinutes = n
		default:
			return fmt.Errorf("interval must be 5, 15, 30, or 60 minutes")
		}
	case "sync.auto":
		cfg.Sync.AutoSync = parseBoolArg(value)
	case "sync.on_startup":
		cfg.Sync.SyncOnStartup = parseBoolArg(value)
	case "remote.endpoint":
		cfg.Remote.Endpoint = value
	case "remote.bucket":
		cfg.Remote.Bucket = value
	case "remote.prefix":
		cfg.Remote.Prefix = value
	case "remote.access_key":
		cfg.Remote.AccessKey = value
	case "remote.secret_key":
		cfg.Remote.SecretKey = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func parseBoolArg(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func deviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "device",
		Usage: "Show or rename this device's sync identity",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the device id and name",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					id, err := device.NewManager(cfg.DataDir()).Load()
					if err != nil {
						return err
					}
					fmt.Printf("%s\n%s\n", id.Name, ui.Dim(id.ID))
					return nil
				},
			},
			{
				Name:      "rename",
				Usage:     "Set the device name shown in conflicts",
				UsageText: "storysync device rename <name>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.New("rename requires exactly 1 argument: <name>")
					}
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					id, err := device.NewManager(cfg.DataDir()).SetName(cmd.Args().Get(0))
					if err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess("renamed to " + id.Name))
					return nil
				},
			},
		},
	}
}
