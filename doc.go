// Package household provides session lifecycle and access control for a
// shared household application: a session controller driven by a remote
// identity provider, profile hydration, and a role based policy for routes
// and records.
//
// Session lifecycle:
//   - SessionController owns the session, profile and SessionState of one
//     viewer. It reconciles the provider's current session query with its
//     change stream, so whichever result arrives first settles initialization
//     and later duplicates are ignored.
//   - Every change is published as a snapshot to subscribers. Loading is
//     derived from the state and never stored on its own.
//   - Guests are synthesized locally by SignInAsGuest. They never reach the
//     provider or the remote household store.
//
// Access policy:
//   - AccessPolicy gates routes (CanEnter, CanEnterRoute) and records
//     (CanSee, CanMutate, CanCreate). Decisions are pure functions of the
//     viewer, the record and the FeatureRule table.
//   - Records of another household are never visible. The creator of a
//     record can always see and act on it.
//   - ExtraRules adds operator expressions that can only widen visibility.
//
// Storage:
//   - HouseholdStore is partitioned by household. ScopedStore binds it to a
//     viewer and refuses to run without a household identifier.
//
// Activity sinks:
//   - ActivitySink receives session transitions, sign in results and access
//     denials. Sinks run best effort: errors are logged, never returned.
package household
