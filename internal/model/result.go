package model

// Result is the outcome of one aggregation for one identity.
type Result struct {
	Identity Identity
	Model    *CalendarDayModel

	// Hops is the number of log pages requested; zero when the upstream
	// was not consulted.
	Hops int
	// Found reports whether a page yielded entries for Identity.
	Found bool
	// Exhausted is set when the hop ceiling was reached without a match.
	Exhausted bool
	// FailedDetails counts task detail fetches that failed and were
	// dropped.
	FailedDetails int

	RequestID string
}
