/*
Package domain contains the core domain models of the claims triage workflow.

It defines the records that flow through one workflow instance, from the immutable
Claim read by the intake loop to the FinalDecision handed to the result sink. The
package is kept free of I/O and persistence concerns, following Hexagonal
Architecture principles: adapters live under pkg/adapters and talk to the core
through the interfaces in pkg/ports.

# Key Entities

  - Claim: The immutable unit of work, identified by ClaimID.
  - TaskRequest / TaskResult: One delegated analysis and its outcome (output or error).
  - DecisionProposal: The provisional decision produced by synthesis.
  - ReviewAction: Approve, Reject or Edit, the only input accepted at the review checkpoint.
  - Session: The durable, resumable state of one in-flight workflow instance.
  - FinalDecision: The terminal, write-once artifact for a claim.
*/
package domain
