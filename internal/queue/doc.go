// Package queue persists job records and implements the claim protocol that
// lets concurrently running workers share one topic queue safely. Two
// backends satisfy the Store contract: a CSV file guarded by an exclusive
// file lock, and a SQLite database using guarded updates. Conflicting claims
// surface as ErrClaimConflict, which callers treat as normal contention
// rather than failure.
package queue
