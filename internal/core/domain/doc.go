// Package domain contains the core business entities and pure functions of
// the radar pipeline: records and their derived lifecycle stage, the
// field-by-field merge rules for re-ingested records, backfill windows, and
// the error taxonomy used by the retry executor.
package domain
