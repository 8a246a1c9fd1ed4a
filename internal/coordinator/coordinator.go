// Package coordinator wires every ConsultEase component together and owns
// their lifecycle (§4.9): construction in startup order, and a bounded,
// reverse-order graceful shutdown. No component in this package reaches for
// a global -- everything is constructed here and handed down explicitly,
// replacing the singleton/module-global pattern the original system used.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/consultease/central/internal/adminops"
	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/auth"
	"github.com/consultease/central/internal/bus"
	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/consultation"
	"github.com/consultease/central/internal/errs"
	"github.com/consultease/central/internal/httpserver"
	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/presence"
	"github.com/consultease/central/internal/rfid"
	"github.com/consultease/central/internal/telemetry"
)

// shutdownStepTimeout bounds each reverse-order shutdown step, per §5's
// "bounded deadline per step" requirement.
const shutdownStepTimeout = 5 * time.Second

// Coordinator owns every component ConsultEase needs and the order they
// start and stop in.
type Coordinator struct {
	cfg    *config.Config
	logger *slog.Logger

	pool      *persistence.Pool
	auditLog  *audit.Writer
	busClient *bus.Client

	presenceTracker *presence.Tracker
	consultations   *consultation.Engine
	rfidAdapter     *rfid.Adapter

	sessions       *auth.SessionManager
	failedAttempts *auth.FailedAttempts
	adminAuth      *auth.AdminAuthenticator
	studentAuth    *auth.StudentAuthenticator

	adminOps   *adminops.AdminOps
	facultyOps *adminops.FacultyOps
	studentOps *adminops.StudentOps

	server  *httpserver.Server
	httpSrv *http.Server

	sweeperDone chan struct{}
	rfidDone    chan struct{}
}

// Build constructs every component in the §4.9 startup order: persistence
// -> audit log -> bus client -> presence tracker -> consultation engine ->
// RFID adapter -> auth manager -> admin operations -> HTTP surface. It does
// not connect the bus, load durable presence state or pending consultation
// rows, or start any background loops; Run does those.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Coordinator, error) {
	c := &Coordinator{cfg: cfg, logger: logger}

	if err := persistence.Migrate(cfg.Database); err != nil {
		return nil, errs.Wrap(errs.KindFatal, "schema_migrate", fmt.Errorf("applying schema migrations: %w", err))
	}

	pool, err := persistence.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	c.pool = pool

	c.auditLog = audit.NewWriter(pool.Raw(), logger)

	c.busClient = bus.New(cfg.Broker, logger)

	facultyStore := persistence.NewFacultyStore(pool.Raw())
	studentStore := persistence.NewStudentStore(pool.Raw())
	consultStore := persistence.NewConsultationStore(pool.Raw())
	adminStore := persistence.NewAdminStore(pool.Raw())

	grace := time.Duration(cfg.Security.GraceIntervalSec) * time.Second
	if grace <= 0 {
		grace = 45 * time.Second
	}
	c.presenceTracker = presence.New(facultyStore, logger, grace)
	c.presenceTracker.OnStateChange(c.publishPresenceChange)

	c.consultations = consultation.New(consultStore, facultyStore, studentStore, c.busClient, c.auditLog, logger, cfg.Security)

	c.rfidAdapter = rfid.New(cfg.RFID, logger)

	idleTimeout := time.Duration(cfg.Security.SessionIdleTimeoutMin) * time.Minute
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	c.sessions = auth.NewSessionManager(idleTimeout, cfg.Security.InvalidateOnAddrChange)

	lockoutWindow := time.Duration(cfg.Security.LockoutWindowSec) * time.Second
	if lockoutWindow <= 0 {
		lockoutWindow = 900 * time.Second
	}
	c.failedAttempts = auth.NewFailedAttempts(cfg.Security.LockoutThreshold, lockoutWindow)
	c.adminAuth = auth.NewAdminAuthenticator(adminStore, c.sessions, c.failedAttempts, c.auditLog, logger,
		cfg.Security.BcryptCost, cfg.Security.PasswordRotationDays)

	c.adminOps = adminops.NewAdminOps(adminStore, c.sessions, c.auditLog, logger, cfg.Security.BcryptCost)
	c.facultyOps = adminops.NewFacultyOps(facultyStore, c.presenceTracker, c.auditLog, logger)
	c.studentOps = adminops.NewStudentOps(studentStore, c.auditLog, logger)

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)
	c.server = httpserver.NewServer(cfg, logger, pool, c.busClient, metricsReg, c.sessions, c.adminAuth,
		c.adminOps, c.facultyOps, c.studentOps, c.consultations, consultStore)

	c.studentAuth = auth.NewStudentAuthenticator(studentStore, c.sessions, c.auditLog, logger, c.server.ScanCallback())
	c.rfidAdapter.SetHandler(c.studentAuth)

	c.registerBusHandlers()

	c.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      c.server,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return c, nil
}

// Run starts every background loop (audit writer, bus connection,
// consultation sweeper, RFID adapter, HTTP server) and blocks until ctx is
// cancelled, then runs the reverse-order graceful shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	c.auditLog.Start(ctx)

	go c.connectBusLoop(ctx)

	if err := c.presenceTracker.LoadDurableState(ctx); err != nil {
		c.logger.Error("loading durable presence state", "error", err)
	}

	if _, err := c.consultations.LoadPending(ctx); err != nil {
		c.logger.Error("validating pending consultations at startup", "error", err)
	}
	c.sweeperDone = make(chan struct{})
	go func() {
		defer close(c.sweeperDone)
		c.consultations.RunSweeper(ctx)
	}()

	c.rfidDone = make(chan struct{})
	go func() {
		defer close(c.rfidDone)
		if err := c.rfidAdapter.Run(ctx); err != nil {
			c.logger.Error("rfid adapter stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("http server listening", "addr", c.cfg.ListenAddr())
		if err := c.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("shutdown signal received")
	case err := <-errCh:
		runErr = err
		c.logger.Error("http server exited unexpectedly", "error", err)
	}

	c.shutdown()
	return runErr
}

// shutdown tears components down in the reverse of the §4.9 startup order,
// each step bounded by shutdownStepTimeout so a wedged component cannot
// hang the whole process.
func (c *Coordinator) shutdown() {
	step := func(name string, fn func(ctx context.Context)) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownStepTimeout)
		defer cancel()
		done := make(chan struct{})
		go func() {
			fn(ctx)
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn("shutdown step timed out", "step", name)
		}
	}

	step("http_server", func(ctx context.Context) {
		if err := c.httpSrv.Shutdown(ctx); err != nil {
			c.logger.Error("shutting down http server", "error", err)
		}
	})

	if c.rfidDone != nil {
		step("rfid_adapter", func(ctx context.Context) {
			select {
			case <-c.rfidDone:
			case <-ctx.Done():
			}
		})
	}

	if c.sweeperDone != nil {
		step("consultation_sweeper", func(ctx context.Context) {
			select {
			case <-c.sweeperDone:
			case <-ctx.Done():
			}
		})
	}

	step("presence_tracker", func(ctx context.Context) {
		c.presenceTracker.Shutdown()
	})

	step("bus_client", func(ctx context.Context) {
		c.busClient.Disconnect()
	})

	step("audit_log", func(ctx context.Context) {
		c.auditLog.Close()
	})

	step("persistence", func(ctx context.Context) {
		c.pool.Close()
	})
}

// connectBusLoop establishes the broker connection, retrying with
// exponential backoff capped at the configured ceiling if the initial
// connect fails -- the coordinator never blocks other components' startup
// waiting on the broker (§4.9, §7's bus_unavailable degraded mode).
func (c *Coordinator) connectBusLoop(ctx context.Context) {
	backoff := time.Second
	maxBackoff := time.Duration(c.cfg.Broker.ReconnectMaxDelay) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	for {
		if err := c.busClient.Connect(ctx); err != nil {
			c.logger.Warn("message bus connect failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		c.logger.Info("message bus connected", "broker", c.cfg.Broker.URL())
		return
	}
}
