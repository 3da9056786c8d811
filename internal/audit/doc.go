// Package audit provides structured audit event recording for the PBX
// admin API. Events are enqueued fire-and-forget onto a bounded queue
// and written as JSON lines by a single consumer; when the queue is
// full the oldest event is dropped and counted, so recording never
// blocks request handling.
package audit
