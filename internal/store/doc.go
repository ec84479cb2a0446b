// Package store defines persistence interfaces and shared database
// plumbing (DBTX, transactions, error vocabulary) for the pipeline.
package store
