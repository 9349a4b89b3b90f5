// Package certificate contains the certificate domain model and the
// generation engine: the state machine that validates a request, renders the
// artifact, hashes it, stores it, and transitions the record to its terminal
// status.
//
// The engine exposes one pipeline shared by both dispatch modes. The
// synchronous path calls Process inline; the asynchronous path publishes a
// GenerationJob and the queue consumer calls the same Process. Process
// re-reads the current status before doing any work and no-ops on ISSUED and
// REVOKED records, which makes redelivered jobs convergent under
// at-least-once delivery.
//
// External collaborators (template store, renderer, object storage, quota
// counter, issued registry, job publisher) are consumed through narrow
// interfaces defined here; adapters live under integration/.
package certificate
