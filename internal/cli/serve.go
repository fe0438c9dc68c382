package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lifehub/internal/config"
	"lifehub/internal/ics"
	appLog "lifehub/internal/log"
	"lifehub/internal/mirror"
	"lifehub/internal/scheduler"
	"lifehub/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
}

func runServe(cmd *cobra.Command, args []string) error {
	appLog.Info("lifehub starting")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"data_dir", cfg.DataDir,
		"work_start", cfg.WorkHours.Start,
		"work_end", cfg.WorkHours.End,
		"refresh", cfg.RefreshCron,
		"ics_count", len(cfg.ICS),
		"auth", cfg.Auth.JWTSecret != "",
		"mirror", cfg.Mirror.DSN != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, fs := openStore(cfg)

	// The mirror subscribes before hydration so the hydrated state is
	// written as a full tree.
	if cfg.Mirror.DSN != "" {
		db, err := mirror.Connect(cfg.Mirror.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		m, err := mirror.New(db, cfg.Mirror.UserID, 0)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.EnsureSchema(ctx); err != nil {
			return err
		}
		defer m.Attach(st)()
		appLog.Info("document mirror enabled", "user", cfg.Mirror.UserID)
	}

	st.Hydrate()
	appLog.Info("snapshot", "path", fs.Path())

	var refresh web.RefreshFunc
	if subs := subscriptions(cfg); len(subs) > 0 {
		r := &scheduler.Refresher{
			Fetcher:  ics.NewFetcher(cfg.CacheDir()),
			Importer: st,
			Subs:     subs,
			Location: cfg.Location(),
			Horizon:  time.Duration(cfg.HorizonDays) * 24 * time.Hour,
		}
		sched, err := scheduler.New(cfg.RefreshCron, cfg.Location(), r)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
		go sched.RunNow(ctx)
		refresh = sched.RunNow
	}

	srv := web.NewServer(web.Options{Config: cfg, Store: st, Refresh: refresh})
	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
		return err
	}

	appLog.Info("lifehub exiting")
	return nil
}

func subscriptions(cfg *config.Config) []scheduler.Subscription {
	subs := make([]scheduler.Subscription, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		subs = append(subs, scheduler.Subscription{
			Source:     ics.Source{ID: c.ID, URL: c.URL},
			CalendarID: c.CalendarID,
		})
	}
	return subs
}
