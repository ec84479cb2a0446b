// Package domain contains the core entities of the tailoring pipeline:
// generations, their output artifacts, the usage ledger, and the derived
// stream snapshot. Entities validate themselves; persistence and
// transport concerns live elsewhere.
package domain
