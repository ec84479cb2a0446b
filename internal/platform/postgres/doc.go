// Package postgres provides PostgreSQL implementations of the store
// interfaces. All stores accept a store.DBTX so they work identically
// over a *sql.DB or inside a transaction.
package postgres
