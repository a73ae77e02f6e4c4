// Package chainlog provides the append-only, externally sequenced record log
// that marketplace participants coordinate through.
//
// The log assigns every appended payload a monotonically increasing sequence
// number; that number is the sole ordering authority. Readers must tolerate
// re-reading the log from scratch and re-seeing records they already
// consumed; deduplication happens at the consumer, keyed by sequence.
//
// Two backends are provided: an in-memory log for tests and single-process
// demos, and a NATS JetStream stream for durable deployments.
package chainlog
