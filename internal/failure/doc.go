// Package failure defines the closed taxonomy of provider failures and the
// retry policy attached to each category.
//
// Every routing decision in the dispatcher is driven by the policy table:
//
//	policy := failure.PolicyFor(failure.RateLimited)
//	if policy.Retryable {
//	    // retry on the same provider
//	}
//
// Adding a category means adding a constant and one row to the table.
package failure
