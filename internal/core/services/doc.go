// Package services implements the pipeline orchestration core: the
// retry/backoff executor wrapping every remote call, the generic stage
// runner, the checkpointed historical backfill, the stage sequencer and the
// interval scheduler.
package services
