// Package task implements the durable job pipeline: the queue contract,
// the polling worker, and the generation processor that turns one queued
// job into a persisted artifact set.
package task
