// Package approval records human approval gates for high-risk tool calls.
//
// A Record is created pending by RequestApproval and resolved exactly once.
// Decide hands the decision to the registered DecisionHandler, which resolves
// the record and resumes the suspended run.
package approval
