// Package dispatch implements the durable work queue between certificate
// submission and generation: a Publisher that stores jobs through a Broker,
// and a Worker pool that claims and processes them.
//
// Delivery is at-least-once. Handlers for application jobs are expected to
// be idempotent and to swallow application-level failures (the generation
// handler records them on the certificate instead of returning an error), so
// a claimed job is normally acknowledged regardless of outcome and retry
// policy lives in application data, not in broker redelivery.
//
// A returned handler error means the job itself could not be delivered; such
// jobs are retried with backoff up to MaxAttempts and then parked in the
// dead-letter table. Jobs whose kind has no registered handler go straight
// to the dead-letter table, since redelivery cannot help until a handler is
// deployed.
//
// Brokers: MemoryBroker for tests and local development, and a Postgres
// broker under integration/database/pg for production.
package dispatch
