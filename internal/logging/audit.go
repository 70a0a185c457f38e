package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one of the rare device-lifecycle events kept in
// a separate rotated record. Unlike the debug stream, each of these
// changes how frames are interpreted downstream, so they are worth a
// durable trail.
type AuditEventType string

const (
	AuditEventStartup         AuditEventType = "startup"
	AuditEventShutdown        AuditEventType = "shutdown"
	AuditEventDeviceConnected AuditEventType = "device_connected"
	AuditEventDeviceLost      AuditEventType = "device_lost"
	AuditEventSensorReset     AuditEventType = "sensor_reset"
	AuditEventFrameTruncated  AuditEventType = "frame_truncated"
	AuditEventBufferOverflow  AuditEventType = "buffer_overflow"
	AuditEventCalibrationLoad AuditEventType = "calibration_loaded"
	AuditEventProcessorSwitch AuditEventType = "processor_switch"
	AuditEventError           AuditEventType = "error"
)

// AuditEvent is one line of the JSONL audit trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      AuditEventType `json:"event_type"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AuditLogger appends audit events to a rotated JSONL file.
type AuditLogger struct {
	mu  sync.Mutex
	out *FileRotator
}

var (
	auditLogger *AuditLogger
	auditOnce   sync.Once
)

// DefaultAuditLogger returns the process-wide audit logger, writing
// under the state directory. Falls back to a no-file logger when the
// directory cannot be created.
func DefaultAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		l, err := NewAuditLogger(filepath.Join(StateDir(), "audit.log"))
		if err != nil {
			l = &AuditLogger{}
		}
		auditLogger = l
	})
	return auditLogger
}

// NewAuditLogger creates an audit logger appending to path.
func NewAuditLogger(path string) (*AuditLogger, error) {
	rot, err := NewFileRotator(path, 10*1024*1024, 8, true)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{out: rot}, nil
}

// Log appends one event, stamping the time if unset.
func (a *AuditLogger) Log(ctx context.Context, ev AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.out == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Result == "" {
		ev.Result = "success"
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = a.out.Write(append(data, '\n'))
	return err
}

// Close releases the audit file.
func (a *AuditLogger) Close() error {
	if a.out != nil {
		return a.out.Close()
	}
	return nil
}

// Typed helpers for the event vocabulary.

// LogStartup records the daemon coming up.
func (a *AuditLogger) LogStartup(ctx context.Context, version string) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventStartup,
		Details: map[string]any{"version": version},
	})
}

// LogShutdown records the daemon going down and why.
func (a *AuditLogger) LogShutdown(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventShutdown,
		Details: map[string]any{"reason": reason},
	})
}

// LogDeviceConnected records successful enumeration of the digitizer.
func (a *AuditLogger) LogDeviceConnected(ctx context.Context, vendor, product uint16) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventDeviceConnected,
		Details: map[string]any{"vendor_id": vendor, "product_id": product},
	})
}

// LogDeviceLost records loss of contact with the device.
func (a *AuditLogger) LogDeviceLost(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventDeviceLost,
		Result:  "failure",
		Details: map[string]any{"reason": reason},
	})
}

// LogSensorReset records a SIGUSR1-triggered sensor reset.
func (a *AuditLogger) LogSensorReset(ctx context.Context) error {
	return a.Log(ctx, AuditEvent{Type: AuditEventSensorReset})
}

// LogFrameTruncated records a frame dropped over a short read or a
// length mismatch inside a container.
func (a *AuditLogger) LogFrameTruncated(ctx context.Context, reason string, want, got int) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventFrameTruncated,
		Result:  "failure",
		Details: map[string]any{"reason": reason, "want_len": want, "got_len": got},
	})
}

// LogBufferOverflow records the driver overwriting ring buffers faster
// than this processor drained them.
func (a *AuditLogger) LogBufferOverflow(ctx context.Context, bufferIndex int) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventBufferOverflow,
		Result:  "failure",
		Details: map[string]any{"buffer_index": bufferIndex},
	})
}

// LogCalibrationLoad records a per-device config file being matched on
// Vendor/Product and applied.
func (a *AuditLogger) LogCalibrationLoad(ctx context.Context, path string, width, height int) error {
	return a.Log(ctx, AuditEvent{
		Type:     AuditEventCalibrationLoad,
		Resource: path,
		Details:  map[string]any{"width": width, "height": height},
	})
}

// LogProcessorSwitch records a change between the advanced and basic
// touch processors.
func (a *AuditLogger) LogProcessorSwitch(ctx context.Context, from, to string) error {
	return a.Log(ctx, AuditEvent{
		Type:    AuditEventProcessorSwitch,
		Details: map[string]any{"from": from, "to": to},
	})
}

// LogError records a failure worth keeping beyond the debug stream.
func (a *AuditLogger) LogError(ctx context.Context, operation string, err error) error {
	return a.Log(ctx, AuditEvent{
		Type:     AuditEventError,
		Resource: operation,
		Result:   "failure",
		Error:    err.Error(),
	})
}

// Package-level shorthands against the default audit logger.

func AuditStartup(ctx context.Context, version string) error {
	return DefaultAuditLogger().LogStartup(ctx, version)
}

func AuditShutdown(ctx context.Context, reason string) error {
	return DefaultAuditLogger().LogShutdown(ctx, reason)
}

func AuditDeviceConnected(ctx context.Context, vendor, product uint16) error {
	return DefaultAuditLogger().LogDeviceConnected(ctx, vendor, product)
}

func AuditDeviceLost(ctx context.Context, reason string) error {
	return DefaultAuditLogger().LogDeviceLost(ctx, reason)
}

func AuditSensorReset(ctx context.Context) error {
	return DefaultAuditLogger().LogSensorReset(ctx)
}

func AuditFrameTruncated(ctx context.Context, reason string, want, got int) error {
	return DefaultAuditLogger().LogFrameTruncated(ctx, reason, want, got)
}

func AuditCalibrationLoad(ctx context.Context, path string, width, height int) error {
	return DefaultAuditLogger().LogCalibrationLoad(ctx, path, width, height)
}

func AuditError(ctx context.Context, operation string, err error) error {
	return DefaultAuditLogger().LogError(ctx, operation, err)
}
