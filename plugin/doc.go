// Package plugin binds user-supplied backends into the runtime at
// startup.
//
// A TOML descriptor at a well-known path enumerates plugin entries
// grouped by capability:
//
//	[plugins]
//	queue_backend  = ["./plugins/redis.so:Plugin"]
//	result_backend = []
//	monitoring     = ["./plugins/statsd.so:Plugin"]
//
// Each entry names a shared object built with -buildmode=plugin and an
// exported symbol implementing the Plugin interface. Loading happens
// exactly once at process startup, before any worker is created; any
// load failure is fatal and surfaced as ErrPluginLoad.
//
// Started plugins register backend factories with the capability
// Registry. The registry is written only during startup and read-only
// afterwards. Stop is called during graceful shutdown in reverse start
// order.
//
// Monitoring plugins pull: they hold the process metrics provider
// handle and poll it at their own cadence. They never own the
// dispatcher.
package plugin
