// Package notify delivers best-effort desktop notifications through the
// org.freedesktop.Notifications D-Bus service. Delivery failures are
// never surfaced to callers; a monitor without a notification daemon
// still monitors.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// Urgency maps to the freedesktop notification urgency hint.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notifier sends a notification. timeout zero means the notification
// never expires (used for critical alerts).
type Notifier interface {
	Notify(title, message string, urgency Urgency, timeout time.Duration)
}

// Desktop is the D-Bus backed Notifier. The session bus connection is
// established lazily and reused.
type Desktop struct {
	appName string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDesktop creates a desktop notifier identifying as appName.
func NewDesktop(appName string) *Desktop {
	return &Desktop{appName: appName}
}

// Notify sends the notification. Best-effort: all failures are logged at
// debug and swallowed.
func (d *Desktop) Notify(title, message string, urgency Urgency, timeout time.Duration) {
	conn, err := d.bus()
	if err != nil {
		slog.Debug("Notification skipped, no session bus", "error", err)
		return
	}

	// expire_timeout: 0 means never expire, matching our zero timeout.
	expire := int32(timeout.Milliseconds())

	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		d.appName,
		uint32(0), // replaces_id: always a new notification
		"",        // app_icon
		title,
		message,
		[]string{}, // actions
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(urgency))},
		expire,
	)
	if call.Err != nil {
		slog.Debug("Failed to send notification", "error", call.Err)
		d.reset()
	}
}

func (d *Desktop) bus() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

// reset drops a connection that produced an error so the next attempt
// reconnects.
func (d *Desktop) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn = nil
}

// Nop is a Notifier that discards everything. Used when notifications
// are disabled and as a test default.
type Nop struct{}

func (Nop) Notify(string, string, Urgency, time.Duration) {}
