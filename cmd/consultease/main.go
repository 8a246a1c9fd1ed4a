// Command consultease is the central coordination server's entry point
// (§6): it starts the server by default, or runs one of two operator
// utilities -- a hardware self-check and the one-shot first-admin setup --
// selected by the first non-flag argument.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/consultease/central/internal/adminops"
	"github.com/consultease/central/internal/audit"
	"github.com/consultease/central/internal/auth"
	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/coordinator"
	"github.com/consultease/central/internal/persistence"
	"github.com/consultease/central/internal/rfid"
	"github.com/consultease/central/internal/telemetry"
)

// Exit codes per §6.
const (
	exitOK                  = 0
	exitConfigError         = 2
	exitPersistenceDown     = 3
	exitHardwareCheckFailed = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func defaultConfigDir() string {
	if dir := os.Getenv("CONSULTEASE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/consultease"
}

func run(args []string) int {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	configDir := fs.String("config-dir", defaultConfigDir(), "directory holding ConsultEase's configuration files")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	store, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		return exitConfigError
	}
	cfg, err := store.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolving configuration: %v\n", err)
		return exitConfigError
	}

	logger := telemetry.NewLogger(cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	switch command {
	case "serve":
		return runServe(cfg, logger)
	case "selfcheck":
		return runSelfCheck(cfg, logger)
	case "create-first-admin":
		return runCreateFirstAdmin(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q (want serve, selfcheck, create-first-admin)\n", command)
		return exitConfigError
	}
}

func runServe(cfg *config.Config, logger *slog.Logger) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting consultease central server", "listen", cfg.ListenAddr())

	co, err := coordinator.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("building coordinator", "error", err)
		return exitPersistenceDown
	}

	if err := co.Run(ctx); err != nil {
		logger.Error("server exited with error", "error", err)
		return 1
	}
	return exitOK
}

// runSelfCheck is the "run hardware self-check" operator entry point
// (§6): it verifies the database is reachable and that an RFID reader can
// be located (or that simulation mode is explicitly enabled), without
// starting any long-lived component.
func runSelfCheck(cfg *config.Config, logger *slog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := persistence.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("self-check: database unreachable", "error", err)
		return exitPersistenceDown
	}
	defer pool.Close()

	adapter := rfid.New(cfg.RFID, logger)
	if err := adapter.SelfCheck(); err != nil {
		logger.Error("self-check: rfid hardware check failed", "error", err)
		return exitHardwareCheckFailed
	}

	logger.Info("self-check passed: database reachable, rfid reader resolvable")
	return exitOK
}

// runCreateFirstAdmin is the one-shot, interactive "create first admin"
// entry point (§4.8/§6), refused once any admin account exists.
func runCreateFirstAdmin(cfg *config.Config, logger *slog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := persistence.Migrate(cfg.Database); err != nil {
		logger.Error("applying schema migrations", "error", err)
		return exitPersistenceDown
	}
	pool, err := persistence.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connecting to database", "error", err)
		return exitPersistenceDown
	}
	defer pool.Close()

	adminStore := persistence.NewAdminStore(pool.Raw())
	sessions := auth.NewSessionManager(30*time.Minute, false)
	auditLog := audit.NewWriter(pool.Raw(), logger)
	auditLog.Start(ctx)
	defer auditLog.Close()
	ops := adminops.NewAdminOps(adminStore, sessions, auditLog, logger, cfg.Security.BcryptCost)

	needsSetup, err := ops.NeedsFirstTimeSetup(ctx)
	if err != nil {
		logger.Error("checking setup status", "error", err)
		return exitPersistenceDown
	}
	if !needsSetup {
		fmt.Fprintln(os.Stderr, "error: an admin account already exists; create-first-admin is refused once setup is complete")
		return exitConfigError
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	fmt.Print("password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	if _, err := ops.SetupFirstAdmin(ctx, username, password); err != nil {
		fmt.Fprintf(os.Stderr, "error: creating first admin: %v\n", err)
		return exitConfigError
	}

	fmt.Println("first admin account created")
	return exitOK
}
