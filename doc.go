// Package auth implements the client side of the portal's authentication:
// the citizen mobile-OTP login flow, the admin credential flow, the session
// store they write into, and the route guards that read it.
//
// Citizen flow:
//   - LoginFlow drives a LoginAttempt through MobileEntry, OtpEntry and
//     Registration. The identity backend is the only authority on whether a
//     mobile number belongs to an existing citizen; the flow learns that from
//     the RejectionReason attached to a failed verification.
//   - One request is outstanding per flow. Submitting while busy returns
//     ErrFlowBusy and leaves the attempt untouched. StartOver, ChangeMobile and
//     Dispose advance the flow epoch so late responses are dropped.
//
// Admin flow:
//   - AdminFlow performs a single username/password exchange and shares the
//     SessionStore with the citizen flow.
//
// Sessions:
//   - SessionStore pairs an Identity with a bearer token. Both are set and
//     cleared together, persisted through a SessionPersister and broadcast to
//     observers synchronously. The store never validates tokens on its own;
//     callers that see a rejected bearer credential call Clear.
//
// Guards:
//   - AuthenticatedGuard and RoleGuard are pure functions of SessionState.
//     RouteTable binds the portal's paths to guards and Navigator evaluates a
//     path against the live store.
//
// Activity sinks:
//   - ActivitySink receives best-effort audit events for code requests,
//     rejections, logins and session changes. Sink errors are logged and never
//     block authentication.
package auth
