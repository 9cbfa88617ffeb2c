package model

// Change is one label change applied anywhere in the pipeline after Stage 0:
// the heuristic pre-pass and Stage 2's vote/constraint passes both emit these,
// and Stage 3 carries the combined list into the machine output's changes[]
// ledger per spec.md §6.
type Change struct {
	TokenID string
	From    uint32
	To      uint32
	Stage   string
	Reason  string
}
