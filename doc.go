// Package magiclink provides passwordless, email-based authentication built
// around single-use magic-link tokens.
//
// The flow is the following:
//
//  1. A user asks to sign in by submitting their email plus a stable device
//     fingerprint. Issuer.Request gates the request through the per-device
//     rate limiter, mints an unguessable single-use token, persists its
//     digest, and hands the clear token to a Mailer for out-of-band delivery.
//  2. The user follows the emailed link. Verifier.Verify consumes the token
//     exactly once (compare-and-set), resolves the user's role through the
//     shared RoleResolver, and upserts the user profile.
//  3. SessionManager materializes a client-held session from the verified
//     identity, persists it locally as a signed payload, renews it on user
//     activity, and expires it after a fixed horizon. The Broadcaster lets
//     UI regions observe login/logout transitions without polling.
//
// Stores:
//   - The durable TokenStore and RateLimitStore are backed by Bun. Token
//     values are stored as SHA-256 digests, never in clear.
//   - MemoryStore implements both interfaces as a process-local fallback for
//     degraded operation. It does not survive restarts and does not scale
//     across instances; sessions established against it are tagged as
//     degraded and kept under a separate storage key.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the issuer, the
//     verifier, and the session manager. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     authentication.
package magiclink
