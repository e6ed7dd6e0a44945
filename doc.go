/*
Package triage implements a human-in-the-loop insurance claims triage workflow.

Each incoming claim becomes one workflow instance. The claim is fanned out to a
fixed set of analyses (damage assessment, fraud detection, policy
verification), their results are synthesized into a DecisionProposal by
ordered named rules, and the instance suspends durably at a single review
checkpoint. A human reviewer then approves, rejects or edits the proposal;
approve and edit write exactly one FinalDecision per claim.

# Architecture

The core is hexagonal. Storage, claim sources, task executors and the result
sink are ports (see pkg/ports) with file, Redis and in-memory adapters.

  - pkg/delegation: fan-out / fan-in with per-task timeouts.
  - pkg/synthesis: pure, deterministic proposal synthesis.
  - pkg/review: the review checkpoint state machine.
  - pkg/session: per-session serialization and claim ownership.
  - pkg/intake: the polling intake loop.

# Usage

	eng, err := triage.New(
		triage.WithTasks(delegation.DefaultSpecs(damage, fraud, policy)...),
		triage.WithStore(file.New(".triage/sessions")),
		triage.WithArchive(file.NewArchive(".triage/sessions/archive")),
		triage.WithSink(file.NewSink("results")),
	)
	if err != nil {
		log.Fatal(err)
	}

	// Run a claim up to the review checkpoint
	s, err := eng.Start(ctx, claim)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(s.Proposal.Outcome)

	// Later, possibly from another process
	out, err := eng.Resume(ctx, s.ID, domain.Approve{})
*/
package triage
