// Command famtui is the FamPulse terminal client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dukerupert/fampulse/internal/appstate"
	"github.com/dukerupert/fampulse/internal/config"
	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/grocery"
	"github.com/dukerupert/fampulse/internal/logging"
	"github.com/dukerupert/fampulse/internal/messaging"
	"github.com/dukerupert/fampulse/internal/metrics"
	"github.com/dukerupert/fampulse/internal/milk"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/profile"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/recordstore/remote"
	"github.com/dukerupert/fampulse/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "famtui:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultClientPath(), "path to config file")
	poll := flag.Duration("poll", 0, "override the polling interval")
	create := flag.String("create", "", "create a family with this name and open it")
	join := flag.String("join", "", "join a family with this invite code and open it")
	metricsAddr := flag.String("metrics", "", "serve client cache metrics on this address")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		return err
	}
	if *poll > 0 {
		cfg.PollInterval = *poll
	}
	if cfg.Token == "" || cfg.UserID == "" {
		return fmt.Errorf("token and user_id must be set in %s", *configPath)
	}

	logger, closeLog, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var caches []*reconcile.Cache
	client := remote.New(cfg.ServerURL, cfg.Token, logger.With("component", "remote"),
		remote.WithReconnectHook(func() {
			for _, c := range caches {
				if c.Running() {
					c.RefreshAll(ctx)
				}
			}
		}))
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime stopped", "error", err)
		}
	}()

	session, err := openSession(ctx, client, cfg, *create, *join)
	if err != nil {
		return err
	}
	logger.Info("session opened", "user", session.UserID, "family", session.FamilyID, "role", session.Role)

	state, err := appstate.Load(orDefault(cfg.StatePath, appstate.DefaultPath()))
	if err != nil {
		return err
	}

	newCache := func(name string) *reconcile.Cache {
		c := reconcile.New(client, logger.With("cache", name),
			reconcile.WithInterval(cfg.PollInterval),
			reconcile.WithFilter(recordstore.Eq("family_id", session.FamilyID)))
		caches = append(caches, c)
		return c
	}
	groceryCache, milkCache, familyCache := newCache("grocery"), newCache("milk"), newCache("family")

	mut := optimistic.New(logger.With("component", "mutator"))
	notifier := notify.New(client, logger.With("component", "notify"))
	opener := messaging.NewCommandOpener(logger.With("component", "messaging"))

	groceries := grocery.New(client, groceryCache, mut, session, logger.With("module", "grocery"), grocery.WithNotifier(notifier))
	milkSvc := milk.New(client, milkCache, mut, opener, session, logger.With("module", "milk"), milk.WithNotifier(notifier))
	familySvc := family.New(client, familyCache, mut, opener, session, logger.With("module", "family"),
		family.WithAppURL(cfg.AppURL), family.WithNotifier(notifier))
	profileSvc := profile.New(client, familyCache, mut, client, session.UserID, logger.With("module", "profile"))

	// The UI starts each cache while its module is shown.
	for _, c := range caches {
		defer c.Close()
	}

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr, map[string]*reconcile.Cache{
			"grocery": groceryCache, "milk": milkCache, "family": familyCache,
		}, logger)
	}

	return tui.Run(tui.Options{
		Context: ctx,
		State:   state,
		UserID:  session.UserID,
		Grocery: groceries,
		Milk:    milkSvc,
		Family:  familySvc,
		Notify:  notifier,
		Profile: profileSvc,
		Caches:  caches,
		Views: map[string]*reconcile.Cache{
			appstate.ModuleGrocery: groceryCache,
			appstate.ModuleMilk:    milkCache,
			appstate.ModuleFamily:  familyCache,
		},
	})
}

// openSession picks the family to open: a newly created or joined one, the
// configured one, or the user's first.
func openSession(ctx context.Context, store recordstore.Store, cfg config.Client, create, join string) (model.Session, error) {
	familyID := cfg.FamilyID
	switch {
	case create != "":
		fam, err := family.CreateFamily(ctx, store, cfg.UserID, create)
		if err != nil {
			return model.Session{}, err
		}
		fmt.Fprintf(os.Stderr, "created %s, invite code %s\n", fam.Name, fam.InviteCode)
		familyID = fam.ID
	case join != "":
		fam, err := family.JoinFamily(ctx, store, cfg.UserID, join)
		if err != nil {
			return model.Session{}, err
		}
		familyID = fam.ID
	}
	if familyID == "" {
		memberships, err := family.Families(ctx, store, cfg.UserID)
		if err != nil {
			return model.Session{}, err
		}
		if len(memberships) == 0 {
			return model.Session{}, errors.New("you are not in a family yet: use -create NAME or -join CODE")
		}
		familyID = memberships[0].Family.ID
	}
	return family.OpenSession(ctx, store, cfg.UserID, familyID)
}

func openLog(cfg config.Client) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	logger := logging.New(f, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger, func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, caches map[string]*reconcile.Cache, logger *slog.Logger) {
	m := metrics.New()
	for view, c := range caches {
		m.TrackCache(view, c)
	}
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
