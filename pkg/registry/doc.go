// Package registry tracks installed log filters.
//
// Every filter gets a random 128-bit identifier that is never handed out
// twice while the filter is live. All operations go through one mutex.
//
// Expiry: a filter that has not been looked up for Config.Timeout is removed
// by the reaper started with StartReaper; looking a filter up (which every
// query does) resets its clock. A zero Timeout disables expiry. Callers of an
// expired filter observe ErrFilterNotFound, exactly as after an uninstall.
package registry
