package rfid

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/errs"
)

// keyCodeDigits maps the standard Linux evdev key codes for 0-9 to their digits.
var keyCodeDigits = map[uint16]byte{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5',
	7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
}

// ScanResult is delivered to OnScan for every completed RFID read.
type ScanResult struct {
	UID string
	At  time.Time
}

// OnScan is implemented by the consumer of scan events (typically
// internal/auth's RFID-backed student login). Errors reported through it
// describe adapter-level conditions (device loss), not per-scan failures.
type OnScan interface {
	Scanned(result ScanResult)
	DeviceLost(err error)
}

// Adapter reads scans from a physical device (or simulation mode) and
// reports completed UIDs to a registered OnScan, debouncing partial reads
// and suppressing duplicate scans within a short window.
type Adapter struct {
	cfg    config.RFIDConfig
	logger *slog.Logger

	mu        sync.Mutex
	onScan    OnScan
	simulated bool

	lastUID string
	lastAt  time.Time
}

// New creates an Adapter. It does not open a device; Run enters simulation
// mode if cfg.SimulationMode is set or no device can be located.
func New(cfg config.RFIDConfig, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

// SetHandler registers the scan consumer. Must be called before Run.
func (a *Adapter) SetHandler(h OnScan) {
	a.mu.Lock()
	a.onScan = h
	a.mu.Unlock()
}

// Run resolves a device (by configured path, VID:PID, or generic
// heuristic), falling back to simulation mode if none is found, then reads
// scans until ctx is cancelled. On device loss it retries with exponential
// backoff before giving up and dropping into simulation mode, emitting a
// DeviceLost event either way.
func (a *Adapter) Run(ctx context.Context) error {
	if a.cfg.SimulationMode {
		a.enterSimulation("configured for simulation mode")
		<-ctx.Done()
		return nil
	}

	path := a.resolveDevicePath()
	if path == "" {
		a.enterSimulation("no RFID reader device found")
		<-ctx.Done()
		return nil
	}

	backoff := time.Second
	maxBackoff := time.Duration(a.cfg.ReconnectMaxDelay) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for {
		err := a.runDevice(ctx, path)
		if ctx.Err() != nil {
			return nil
		}
		a.mu.Lock()
		handler := a.onScan
		a.mu.Unlock()
		if handler != nil {
			handler.DeviceLost(err)
		}
		a.logger.Warn("rfid device lost, retrying", "path", path, "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			a.logger.Error("rfid device unreachable after max backoff, falling back to simulation", "path", path)
			a.enterSimulation("device unreachable after repeated reconnect attempts")
			<-ctx.Done()
			return nil
		}
	}
}

// SelfCheck verifies a physical reader can be located by the same
// resolution order Run uses, without opening it, for the operator
// hardware self-check entry point (§6). Simulation mode always passes.
func (a *Adapter) SelfCheck() error {
	if a.cfg.SimulationMode {
		return nil
	}
	if a.resolveDevicePath() == "" {
		return errs.New(errs.KindValidation, "rfid_device_not_found",
			"no RFID reader device found and simulation mode is disabled")
	}
	return nil
}

func (a *Adapter) resolveDevicePath() string {
	if a.cfg.DevicePath != "" {
		return a.cfg.DevicePath
	}
	if path, ok := findDeviceByVIDPID(a.cfg.TargetVendorID, a.cfg.TargetProductID); ok {
		return path
	}
	if path, ok := detectGenericReader(); ok {
		return path
	}
	return ""
}

func (a *Adapter) runDevice(ctx context.Context, path string) error {
	dev, err := openDevice(path)
	if err != nil {
		return err
	}
	defer dev.close()

	if err := dev.grab(); err != nil {
		a.logger.Warn("failed to grab rfid device exclusively", "path", path, "error", err)
	}

	a.mu.Lock()
	a.simulated = false
	a.mu.Unlock()

	errCh := make(chan error, 1)
	var buf strings.Builder
	debounce := time.Duration(a.cfg.DebounceMillis) * time.Millisecond
	if debounce <= 0 {
		debounce = time.Second
	}
	var lastKeyAt time.Time

	go func() {
		errCh <- dev.readKeyEvents(func(code uint16) {
			now := time.Now()
			if !lastKeyAt.IsZero() && now.Sub(lastKeyAt) > debounce {
				buf.Reset()
			}
			lastKeyAt = now

			if code == keyEnter {
				uid := buf.String()
				buf.Reset()
				if uid != "" {
					a.emit(uid, now)
				}
				return
			}
			if digit, ok := keyCodeDigits[code]; ok {
				buf.WriteByte(digit)
			}
		})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (a *Adapter) enterSimulation(reason string) {
	a.mu.Lock()
	a.simulated = true
	a.mu.Unlock()
	a.logger.Info("rfid adapter running in simulation mode", "reason", reason)
}

// Simulate injects a scan as if read from hardware; used by the kiosk's
// simulation mode and by tests.
func (a *Adapter) Simulate(uid string) {
	a.emit(uid, time.Now())
}

// emit applies the duplicate-suppression window before delivering a scan.
func (a *Adapter) emit(uid string, at time.Time) {
	a.mu.Lock()
	suppress := uid == a.lastUID && at.Sub(a.lastAt) < time.Duration(a.cfg.DuplicateWindowSec)*time.Second
	if !suppress {
		a.lastUID = uid
		a.lastAt = at
	}
	handler := a.onScan
	a.mu.Unlock()

	if suppress {
		return
	}
	if handler == nil {
		a.logger.Warn("rfid scan with no registered handler", "uid", uid)
		return
	}
	handler.Scanned(ScanResult{UID: uid, At: at})
}

// Simulated reports whether the adapter is currently running without a
// physical device attached.
func (a *Adapter) Simulated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.simulated
}
