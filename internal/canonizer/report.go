package canonizer

// Report is the auditable outcome of one canonization batch. Every
// proposal lands in exactly one bucket; nothing is silently swallowed.
type Report struct {
	SceneID  string
	Accepted []string
	Rejected []string
	Errors   []ProposalError
}

// ProposalError records a proposal whose canonical write failed after
// acceptance. The proposal stays proposed and is picked up by a re-run.
type ProposalError struct {
	ProposalID string
	Reason     string
}

// OK reports whether the batch completed without write errors. Only
// then does the scene advance to completed.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}
