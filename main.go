package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/configs"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
	"github.com/kidoxdavid/eazyfoods-sub000/routes"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/ws"
)

const (
	exitConfig    = 1
	exitDatabase  = 2
	exitMigration = 3

	shutdownTimeout = 15 * time.Second
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	rootCmd := &cobra.Command{
		Use:           "ezf",
		Short:         "EZF order and delivery core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
	rootCmd.AddCommand(serveCommand(), migrateCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(exitConfig)
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "migrate, then run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "migrate the schema and seed the admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB(db)
			log.Info("migrated")
			return nil
		},
	}
}

func bootstrap() (*configs.Config, *zap.Logger, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, fail(exitConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fail(exitConfig, err)
	}
	log, err := logging.NewLogger(cfg.ServiceName, cfg.AppEnv)
	if err != nil {
		return nil, nil, fail(exitConfig, err)
	}
	return cfg, log, nil
}

// openDB connects, migrates and seeds; each failure maps to its exit code.
func openDB(cfg *configs.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := configs.ConnectDB(cfg, log)
	if err != nil {
		return nil, fail(exitDatabase, err)
	}
	if err := configs.Migrate(db); err != nil {
		closeDB(db)
		return nil, fail(exitMigration, err)
	}
	if err := configs.SeedAdmin(db, cfg, log); err != nil {
		closeDB(db)
		return nil, fail(exitMigration, fmt.Errorf("seed admin: %w", err))
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func serve(ctx context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	defer closeDB(db)

	m := metrics.New()
	bus := events.NewBus(log, m, events.DefaultOptions())
	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	bus.Start(busCtx)

	if cfg.RabbitMQURL != "" {
		fwd, err := events.DialForwarder(cfg.RabbitMQURL, cfg.EventsExchange, log)
		if err != nil {
			// analytics export is optional; the core keeps running
			log.Warn("rabbitmq_unavailable", zap.Error(err))
		} else {
			defer fwd.Close()
			bus.Subscribe(events.All, fwd.Handle)
		}
	}

	app := services.NewAppContext(db, cfg, bus, log, m)
	// the hub reads through the services, which need the hub as notifier
	hub := ws.NewHub(nil, nil, log, cfg.CORSOrigins)
	app.Offers = hub
	svc := services.NewServices(app)
	hub.Orders, hub.Drivers = svc.Orders, svc.Drivers
	svc.Subscribe(bus)
	hub.Subscribe(bus)

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go hub.Run(hubCtx)

	if cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	routes.RegisterRoutes(r, app, svc, hub)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown", zap.Error(err))
	}
	cancelHub()
	// committed work has published its events; let handlers finish them
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("event_bus_drain", zap.Error(err))
	}
	log.Info("stopped")
	return nil
}
