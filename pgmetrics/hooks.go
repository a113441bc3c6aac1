package pgmetrics

import "github.com/jkantaria/pglue"

// Instrument wires a Collector into a Wire's event registry: every
// reconnect increments reconnectsTotal, every NOTIFY delivery
// increments notificationsTotal by channel.
func Instrument(w *pglue.Wire, c *Collector) {
	w.OnConnect(c.Reconnected)
	w.OnNotify(func(channel, _ string, _ int32) {
		c.Notified(channel)
	})
}
