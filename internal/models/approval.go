package models

// Confidence grades how certain the approval classifier is about its
// decision.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ChangeTask describes an autonomously produced content change that
// needs an approval decision.
type ChangeTask struct {
	Description    string `json:"description"`
	EstimatedLines int    `json:"estimated_lines"`
}

// ChangeAnalysis carries optional precomputed facts about the change,
// typically extracted from a proposal document. When LinesChanged is
// positive it overrides the task's estimate.
type ChangeAnalysis struct {
	LinesChanged int `json:"lines_changed"`
}

// ApprovalDecision is the classifier's verdict for one change.
type ApprovalDecision struct {
	AutoApprove bool       `json:"auto_approve"`
	Category    string     `json:"category"`
	Reason      string     `json:"reason"`
	Confidence  Confidence `json:"confidence"`
}

// ChangeProposal is a change request parsed from a Markdown proposal
// document: title, prose description, and the total changed-line count
// summed from fenced diff blocks.
type ChangeProposal struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	LinesChanged int    `json:"lines_changed"`
}
