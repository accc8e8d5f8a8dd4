// Package audit buffers security events and hands them to a Sink off the
// request path.
//
// The engine decides which events to emit. This package only queues them,
// counts drops under backpressure and flushes on Close. Sinks provided here
// write to a channel, a JSON stream or a slog.Logger.
package audit
