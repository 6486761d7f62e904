// Package collab bridges the settings store and the persistent channel
// so that several clients can edit the same settings concurrently.
//
// Local writes become Operations that are broadcast as state-change
// messages and kept pending until the server echoes them back. Remote
// changes are transformed against the pending operations with a
// last-writer-wins policy before they reach the store:
//
//   - set against set on the same path: the later timestamp wins, ties go
//     to the local operation
//   - set against delete on the same path: the set wins
//   - a delete of a parent path turns a change below it into a null set
//
// Presence updates are tracked per user and expire after a TTL.
package collab
