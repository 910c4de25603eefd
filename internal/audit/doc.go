// Package audit buffers authentication audit events and relays them to a sink.
//
// The [Dispatcher] runs one goroutine that drains a bounded channel into the
// configured [Sink]. When the buffer is full it either drops the event and counts
// the drop, or blocks the caller until there is room, depending on [Config].
//
// Sinks provided here: [SlogSink], [JSONWriterSink], [ChannelSink] and [NoOpSink].
// Which events to emit is decided by the engine, never by this package.
package audit
