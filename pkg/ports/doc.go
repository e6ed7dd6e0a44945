/*
Package ports defines the driven ports (interfaces) of the triage core.

These interfaces decouple workflow logic from external implementations, allowing
the engine to run against various storage backends, claim sources and task executors.

# Key Interfaces

  - SessionStore: Persists and loads workflow sessions (the review checkpoint).
  - Archive: Keeps tombstones of terminated sessions.
  - DecisionSink: Receives final decisions, once per claim.
  - ClaimSource: Lists incoming claims (e.g., from a Loam directory).
  - TaskExecutor: Performs one delegated analysis.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.

The Run*Contract functions are reusable test suites that every adapter runs.
*/
package ports
