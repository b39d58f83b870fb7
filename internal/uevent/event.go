// Package uevent monitors kernel hotplug notifications.
// It listens on the NETLINK_KOBJECT_UEVENT socket and parses the raw
// kernel datagrams, the same event stream a udev client would consume.
package uevent

import (
	"errors"
	"path"
	"strconv"
	"strings"
)

// Well-known uevent actions. The kernel may emit others (bind, unbind,
// move, online, offline); those are passed through with their literal
// action string.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
)

// Event is a single kernel hotplug notification.
// The action and device name are preserved exactly as the kernel sent
// them.
type Event struct {
	Action    string
	DevPath   string
	Subsystem string
	Name      string // DEVNAME when present, otherwise the devpath basename
	Seqnum    uint64
}

var (
	// errNotKernel marks datagrams from udevd rather than the kernel.
	errNotKernel = errors.New("not a kernel uevent")
	errMalformed = errors.New("malformed uevent")
)

// libudev-originated datagrams carry this magic prefix; we only want
// the kernel's own events.
const libudevPrefix = "libudev"

// parseEvent decodes a raw uevent datagram.
// The wire format is "action@devpath\0KEY=VALUE\0KEY=VALUE\0...".
func parseEvent(data []byte) (Event, error) {
	var ev Event

	if len(data) == 0 {
		return ev, errMalformed
	}
	if strings.HasPrefix(string(data), libudevPrefix) {
		return ev, errNotKernel
	}

	fields := strings.Split(string(data), "\x00")
	header := fields[0]

	at := strings.IndexByte(header, '@')
	if at <= 0 {
		return ev, errMalformed
	}
	ev.Action = header[:at]
	ev.DevPath = header[at+1:]

	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "ACTION":
			ev.Action = value
		case "DEVPATH":
			ev.DevPath = value
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			ev.Name = value
		case "SEQNUM":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				ev.Seqnum = n
			}
		}
	}

	if ev.Action == "" || ev.DevPath == "" {
		return ev, errMalformed
	}
	if ev.Name == "" {
		ev.Name = path.Base(ev.DevPath)
	}

	return ev, nil
}
