// Package daemon provides the main orchestration for gpiodbusd.
// It runs the single event loop combining process signals, bus name
// ownership and kernel hotplug events into one fail-fast lifecycle.
package daemon
