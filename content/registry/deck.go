package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Card is a single prompt/answer pair inside a flashcard deck.
type Card struct {
	ID    string   `json:"id,omitempty"`
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Tags  []string `json:"tags,omitempty"`
}

// Deck is a fetched flashcard deck payload.
type Deck struct {
	SchemaVersion int    `json:"schemaVersion,omitempty"`
	Cards         []Card `json:"cards"`
}

// decodeDeck accepts either a full deck object or a bare card array.
func decodeDeck(data []byte) (*Deck, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty deck document")
	}
	switch trimmed[0] {
	case '{':
		var deck Deck
		if err := json.Unmarshal(trimmed, &deck); err != nil {
			return nil, err
		}
		return &deck, nil
	case '[':
		var cards []Card
		if err := json.Unmarshal(trimmed, &cards); err != nil {
			return nil, err
		}
		return &Deck{Cards: cards}, nil
	default:
		return nil, fmt.Errorf("unexpected json token %q", string(trimmed[:1]))
	}
}
