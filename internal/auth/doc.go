// Package auth resolves caller identity for inbound requests.
//
// Two credential schemes are accepted: a per-user bearer token verified by
// the token collaborator, and a static shared secret granting
// system-level (admin-equivalent) access. Both resolve to one Principal
// shape, so downstream authorization never needs to know which scheme
// authenticated the caller.
//
// The shared-secret header takes precedence: a wrong secret is a hard
// rejection, never a cue to try the bearer path. Failure responses do not
// reveal which part of a credential was wrong.
package auth
