// Command iptsd is the userspace processor for an Intel Precise Touch
// & Stylus digitizer: it reads raw frames from the kernel driver,
// reconstructs touch and stylus events through the signal-to-event
// core, and writes synthetic HID reports back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"iptsd/internal/config"
	"iptsd/internal/devices"
	"iptsd/internal/health"
	"iptsd/internal/logging"
	"iptsd/internal/metrics"
	"iptsd/internal/transport"
)

const maxContacts = 10

// version is overridden at build time via -ldflags.
var version = "devel"

func main() {
	if err := run(); err != nil {
		logging.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := logging.New(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	ctx := context.Background()
	logging.AuditStartup(ctx, version)
	defer logging.AuditShutdown(ctx, "exit")

	devicePath := os.Getenv("IPTSD_DEVICE")
	ring, err := transport.OpenRing(devicePath)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer ring.Close()

	info := ring.Info()
	logging.Info("connected to device", "vendor", fmt.Sprintf("%04X", info.VendorID), "product", fmt.Sprintf("%04X", info.ProductID))
	logging.AuditDeviceConnected(ctx, info.VendorID, info.ProductID)

	configDir := os.Getenv("IPTSD_CONFIG_DIR")
	if configDir == "" {
		configDir = config.DefaultConfigDir
	}
	loader := config.NewLoader(configDir, info.VendorID, info.ProductID)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.AuditCalibrationLoad(ctx, configDir, cfg.General.Width, cfg.General.Height)

	// Config edits are applied at the next frame boundary by rebuilding
	// the device manager; a watch failure (e.g. missing directory) just
	// disables hot reload.
	reloadCh := make(chan *config.Config, 1)
	loader.OnChange(func(c *config.Config) {
		select {
		case reloadCh <- c:
		default:
		}
	})
	if err := loader.Watch(); err == nil {
		defer loader.Close()
	}

	mgr, err := devices.NewManager(cfg, maxContacts)
	if err != nil {
		return fmt.Errorf("init devices: %w", err)
	}

	m := metrics.GetMetrics()
	defer logging.DumpOnPanic(version, m.Snapshot)

	// lastFrame holds unix nanos of the most recent driver read, for
	// the health endpoint's staleness probe.
	var lastFrame atomic.Int64
	if addr := os.Getenv("IPTSD_HEALTH_ADDR"); addr != "" {
		health.Register(&health.Component{
			Name: "frames",
			Check: health.FrameAgeCheck(func() time.Time {
				ns := lastFrame.Load()
				if ns == 0 {
					return time.Time{}
				}
				return time.Unix(0, ns)
			}, 30*time.Second),
		})
		srv := health.Serve(addr, metrics.Default())
		defer srv.Close()
	}
	health.SetReady(true)

	shouldExit := make(chan struct{}, 1)
	shouldReset := make(chan struct{}, 1)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				select {
				case shouldReset <- struct{}{}:
				default:
				}
			default:
				select {
				case shouldExit <- struct{}{}:
				default:
				}
			}
		}
	}()

	parser := transport.NewParser()
	var events []transport.Event

	for {
		select {
		case <-shouldExit:
			logging.Info("stopping")
			return nil
		default:
		}

		buf, err := ring.ReadFrame()
		if err != nil {
			logging.AuditDeviceLost(ctx, err.Error())
			return fmt.Errorf("receive input: %w", err)
		}
		lastFrame.Store(time.Now().UnixNano())

		events = parser.Parse(events[:0], buf)
		for _, ev := range events {
			dispatch(ring, mgr, m, ev)
		}

		select {
		case <-shouldReset:
			logging.Info("resetting touch sensor")
			logging.AuditSensorReset(ctx)
			if err := ring.Reset(); err != nil {
				logging.Error("reset failed", "error", err)
			}
		default:
		}

		select {
		case newCfg := <-reloadCh:
			newMgr, err := devices.NewManager(newCfg, maxContacts)
			if err != nil {
				logging.Error("config reload rejected", "error", err)
				break
			}
			mgr = newMgr
			logging.Info("configuration reloaded")
			logging.AuditCalibrationLoad(ctx, configDir, newCfg.General.Width, newCfg.General.Height)
		default:
		}

		select {
		case <-shouldExit:
			logging.Info("stopping")
			return nil
		default:
		}
	}
}

// dispatch matches one tagged event to its core path and sends the
// resulting HID report.
func dispatch(ring transport.Ring, mgr *devices.Manager, m *metrics.PipelineMetrics, ev transport.Event) {
	now := time.Now()

	switch ev.Kind {
	case transport.EventSingletouch:
		report := mgr.Touch.ProcessSingletouch(ev.Singletouch)
		send(ring, m, report)

	case transport.EventHeatmap:
		if mgr.ActiveStylusCount > 0 && mgr.Conf.Stylus.DisableTouch {
			return
		}
		timer := m.StartHeatmapTimer()
		report, ok := mgr.Touch.ProcessHeatmap(now, ev.Heatmap)
		timer.Stop()
		if ok {
			send(ring, m, report)
		}
		time.Sleep(5 * time.Millisecond)

	case transport.EventStylus:
		m.RecordStylusFrame()
		dev := mgr.GetStylus(ev.Stylus.Serial)
		report, status := dev.ProcessStylusInput(now, ev.Stylus)
		send(ring, m, report)
		mgr.ActiveStylusCount += status
		m.SetActiveStyluses(int64(mgr.ActiveStylusCount))

	case transport.EventDFTStylus:
		m.RecordDFTFrame()
		report, status, ok := mgr.DFTStylus.ProcessDFTStylusInput(now, ev.DFTStylus)
		if !ok {
			return
		}
		send(ring, m, report)
		mgr.ActiveStylusCount += status
		m.SetActiveStyluses(int64(mgr.ActiveStylusCount))
	}
}

func send(ring transport.Ring, m *metrics.PipelineMetrics, report interface{ Encode() []byte }) {
	if err := ring.SendReport(report.Encode()); err != nil {
		logging.Error("send hid report failed", "error", err)
		return
	}
	m.RecordReportEmitted()
}
