// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): storage, external record sources, language
// model providers, the vector index, notification channels and the
// diagnostic failure log.
package driven
