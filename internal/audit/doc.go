// Package audit emits structured security events to an external log sink.
//
// The event taxonomy is closed: new members may be added, existing members
// are never repurposed. Each emitter operation formats its event-specific
// fields plus an optional extra-fields map, merges them over the request's
// context metadata into a single flat JSON record, and hands the record to
// the configured sink.
//
// Audit delivery is observational, never load-bearing: a sink failure is
// recorded on the local diagnostic logger and swallowed, so emission can
// never fail the request it is recording.
package audit
