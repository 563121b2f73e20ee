// Package session implements the stateless guest credential that binds a
// browser to one member of one group.
//
// A credential is "<memberID>.<hex HMAC-SHA256(secret, memberID)>" stored in
// an HttpOnly cookie named group_session_<slug>. Nothing is persisted server
// side: a credential is valid exactly when its tag verifies against the
// process-wide secret and its member id matches the id the request claims.
//
// Authenticate is the only way to obtain a Principal, and the service layer
// only accepts callers derived from a Principal.
package session
