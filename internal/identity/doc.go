// Package identity persists global speakers in SQLite and decides
// whether a voice signature belongs to a known speaker or a new one.
//
// The Store is the only component that reads or writes the speakers
// table, the episode-appearance ledger, and the processed-episode set.
// MatchOrRegister runs its similarity scan and its insert-or-update as
// one critical section: a process-wide mutex plus a single SQLite
// transaction, with an exclusive lock file guarding against other
// processes. That serialization is what prevents two unseen local
// speakers with the same voice from both registering as new ids.
//
// All stored signatures are unit-normalized and share one dimension;
// the first registered speaker fixes the dimension for the life of the
// database. Speaker ids are assigned by SQLite AUTOINCREMENT and are
// never reused.
package identity
