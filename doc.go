// Package ucenter is an embeddable account center: account storage,
// credential verification with brute-force lockout, invite codes with an
// inviter lineage, and a real-name verification review workflow.
//
// Login:
//   - Authenticator walks a fixed sequence of states (validate, resolve the
//     account, check its status, check the lockout windows, verify the
//     credential, commit the session). Every state is logged at debug level.
//   - Unknown accounts and wrong passwords produce the same rejection, only
//     the log tells them apart. Only password failures are recorded in the
//     login audit log and only those count towards a lockout.
//   - The session commit (login metadata plus the success record) runs in a
//     single transaction.
//
// Errors:
//   - Business rejections are *goerrors.Error values with a non internal
//     category and a TextCode. Infrastructure failures use the internal
//     category. Use IsRejection and IsFault to tell them apart.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used for lifecycle, login,
//     real-name and binding events. Sinks run best-effort (errors are logged)
//     so you can forward to a database or queue without blocking requests.
//   - The activitymap subpackage flattens events into a transport neutral
//     shape, activitymap.Sink adapts an emit func to ActivitySink.
//
// Schema:
//   - Table names are configurable. CreateSchema renders the embedded
//     migrations (see GetMigrationsFS) for SQLite or Postgres.
package ucenter
