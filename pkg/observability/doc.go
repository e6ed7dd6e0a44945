/*
Package observability turns workflow lifecycle hooks into Prometheus metrics
and structured audit logs.

Both are plain domain.LifecycleHooks values; combine them with
domain.ComposeHooks and pass the result to triage.WithLifecycleHooks.
*/
package observability
