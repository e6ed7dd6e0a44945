/*
Package runner drives the human side of the review checkpoint.

A Runner lists the sessions suspended in awaiting_review, hands each one to a
Reviewer and feeds the returned action back into the engine. Invalid actions
are reported and the reviewer is asked again; the session is untouched.

# Key Components

  - Runner: the review loop (ReviewPending for one pass, Run until cancelled).
  - Reviewer: the strategy for obtaining a decision from a human.
  - TextReviewer: interactive prompt for terminals.
  - JSONReviewer: NDJSON protocol for wrappers and scripts.

# Usage

	r := runner.NewRunner(engine,
		runner.WithReviewer(runner.NewTextReviewer(os.Stdin, os.Stdout)),
		runner.WithLogger(logger),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
