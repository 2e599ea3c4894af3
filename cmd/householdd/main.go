// Command householdd serves the household API: bearer token sessions, route
// gating and the feature record collections.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	household "github.com/goliatone/go-household"
	"github.com/goliatone/go-household/config"
	"github.com/goliatone/go-household/metrics"
	"github.com/goliatone/go-household/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type memberFlags struct {
	issue       bool
	id          string
	email       string
	name        string
	role        string
	householdID string
}

func main() {
	var mf memberFlags
	flag.BoolVar(&mf.issue, "issue", false, "store the member profile, print an access token and exit")
	flag.StringVar(&mf.id, "member-id", "", "member subject id")
	flag.StringVar(&mf.email, "member-email", "", "member email")
	flag.StringVar(&mf.name, "member-name", "", "member display name")
	flag.StringVar(&mf.role, "member-role", string(household.RoleFamily), "member role")
	flag.StringVar(&mf.householdID, "member-household", "", "member household id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lgr := newLogger(cfg.LogLevel)

	fmt.Println(print.MaybePrettyJSON(cfg.Redacted()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg, lgr, mf); err != nil {
		lgr.GetLogger("main").Error("householdd failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *glog.BaseLogger {
	if level == "trace" {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("householdd"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("householdd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

func run(ctx context.Context, cfg config.Config, lgr *glog.BaseLogger, mf memberFlags) error {
	if cfg.SigningKey == "" {
		return goerrors.New("HOUSEHOLD_TOKEN_SIGNING_KEY is required", goerrors.CategoryValidation)
	}

	loggers := household.LoggerProviderFunc(func(name string) household.Logger {
		return lgr.GetLogger(name)
	})

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetServer())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open database")
	}
	sqldb.SetMaxOpenConns(1)
	defer sqldb.Close()

	client, err := openPersistence(ctx, cfg, sqldb, lgr.GetLogger("persistence"))
	if err != nil {
		return err
	}

	manager := repository.NewManager(client.DB())
	manager.MustValidate()

	tokens := household.NewTokenService(
		[]byte(cfg.SigningKey),
		append(cfg.TokenOptions(), household.WithTokenLogger(loggers.GetLogger("household.token")))...,
	)

	if mf.issue {
		return issueMember(ctx, manager, tokens, mf)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rules, err := cfg.ExtraRules()
	if err != nil {
		return err
	}

	resolver := household.NewProfileResolver(
		manager.Profiles(),
		household.WithResolverLoggerProvider(loggers),
		household.WithResolverTimeout(cfg.GetLoadingTimeout()),
		household.WithResolverGuestHousehold(cfg.GetGuestHouseholdID()),
	)

	policy := household.NewAccessPolicy(
		household.WithPolicyExtraRules(rules),
		household.WithPolicyMetrics(collector),
		household.WithPolicyLoggerProvider(loggers),
	)

	activity := activityLogger(loggers.GetLogger("household.activity"))

	viewers := household.NewTokenViewerResolver(tokens, resolver)
	viewers.Logger = loggers.GetLogger("household.http")

	guard := household.NewRouteGuard(
		policy,
		viewers,
		household.WithGuardLogger(loggers.GetLogger("household.guard")),
		household.WithGuardActivitySink(activity),
	)

	controller := household.NewHTTPController(
		policy,
		guard,
		household.WithControllerStore(manager.Records()),
		household.WithControllerHTTPLogger(loggers.GetLogger("household.api")),
	)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: true,
			StrictRouting:     false,
		}))
	})
	controller.RegisterRoutes(srv.Router().Group("/api"))
	registerPages(srv.Router(), household.DefaultRouteTable(), guard)

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.GetLogger("metrics").Error("metrics server stopped", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggers.GetLogger("main").Error("http server shutdown", "error", err)
	}
	return metricsSrv.Shutdown(shutdownCtx)
}

// openPersistence registers the models, connects the persistence client and
// applies the embedded migrations.
func openPersistence(ctx context.Context, cfg config.Config, sqldb *sql.DB, logger persistence.Logger) (*persistence.Client, error) {
	repository.RegisterModels()

	client, err := persistence.New(cfg, sqldb, sqlitedialect.New())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to connect database")
	}
	client.SetLogger(logger)

	migrations, err := repository.MigrationsFS()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open migrations")
	}
	client.RegisterSQLMigrations(migrations)

	if err := client.Migrate(ctx); err != nil {
		return nil, err
	}

	if report := client.Report(); report != nil && !report.IsZero() {
		logger.Info("migrations applied", "group", report.String())
	}
	return client, nil
}

// registerPages mounts one JSON page per route table entry. The page names
// the view the viewer role renders. Every other GET falls through to a catch
// all that is gated by the same table.
func registerPages[T any](r router.Router[T], table *household.RouteTable, guard *household.RouteGuard) {
	protect := guard.ProtectTable(table)
	for _, route := range table.Routes() {
		r.Get(route.Path, pageHandler(table), protect)
	}
	r.Get("/*", pageHandler(table), protect)
}

func pageHandler(table *household.RouteTable) router.HandlerFunc {
	return func(ctx router.Context) error {
		route, ok := table.Match(ctx.Path())
		if !ok {
			return ctx.JSON(http.StatusNotFound, map[string]any{
				"error": "page not found",
				"path":  ctx.Path(),
			})
		}

		viewer, _ := household.GetRouterViewer(ctx)
		role := household.RoleGuest
		if viewer.Profile != nil {
			role = viewer.Profile.Role
		}
		return ctx.JSON(router.StatusOK, map[string]any{
			"path": route.Path,
			"view": route.ViewFor(role),
		})
	}
}

func issueMember(ctx context.Context, manager *repository.Manager, tokens *household.TokenService, mf memberFlags) error {
	role, ok := household.ParseRole(mf.role)
	if !ok {
		return fmt.Errorf("unknown member role %q", mf.role)
	}

	profile := &household.UserProfile{
		ID:          mf.id,
		Email:       mf.email,
		Name:        mf.name,
		Role:        role,
		HouseholdID: mf.householdID,
	}
	if err := manager.Profiles().SaveProfile(ctx, profile); err != nil {
		return err
	}

	token, err := tokens.Issue(&household.Session{
		SubjectID:       profile.ID,
		Email:           profile.Email,
		AuthenticatedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func activityLogger(logger household.Logger) household.ActivitySink {
	return household.ActivitySinkFunc(func(_ context.Context, event household.ActivityEvent) error {
		logger.Info("activity",
			"event", event.EventType,
			"subject_id", event.SubjectID,
			"household_id", event.HouseholdID,
			"role", event.Role,
			"metadata", print.MaybePrettyJSON(event.Metadata),
		)
		return nil
	})
}
