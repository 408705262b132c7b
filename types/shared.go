package types

import "encoding/json"

// Record is a JSON object that remembers the order its keys were set in, so
// dataset rows round-trip with their column order intact.
type Record struct {
	keys   []string
	values map[string]json.RawMessage
}

// OutputRecord is one line of the masked and tokenized output.
type OutputRecord struct {
	OriginalStatement  string   `json:"original_statement"`
	StatementWithMask  string   `json:"statement_with_mask"`
	MaskInfo           []string `json:"mask_info"`
	Tokens             []string `json:"tokens"`
	TokenIDs           []int    `json:"token_ids"`
	MaskTokenPositions []int    `json:"mask_token_positions"`
}
