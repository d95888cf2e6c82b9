// Package panel builds the typed UI descriptors the exploration client renders.
// A Panel is immutable once built: projector functions allocate fresh
// payloads and nothing in this module mutates one afterwards.
package panel

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind names a panel variant. The set is closed; clients key their
// renderers on it.
type Kind string

const (
	KindEntityCard    Kind = "entity_card"
	KindEntityList    Kind = "entity_list"
	KindChildPreview  Kind = "child_preview"
	KindChildFull     Kind = "child_full"
	KindActorCard     Kind = "actor_card"
	KindActorList     Kind = "actor_list"
	KindCausalChain   Kind = "causal_chain"
	KindActivityFeed  Kind = "activity_feed"
	KindSearchResults Kind = "search_results"
	KindEmpty         Kind = "empty"
)

var kinds = map[Kind]struct{}{
	KindEntityCard:    {},
	KindEntityList:    {},
	KindChildPreview:  {},
	KindChildFull:     {},
	KindActorCard:     {},
	KindActorList:     {},
	KindCausalChain:   {},
	KindActivityFeed:  {},
	KindSearchResults: {},
	KindEmpty:         {},
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Panel is a kind tag plus its kind-specific payload.
type Panel struct {
	Kind Kind `json:"type"`
	Data any  `json:"data"`
}

// UnmarshalJSON decodes a panel received from a client. The payload is kept
// as raw JSON so it round-trips byte for byte.
func (p *Panel) UnmarshalJSON(b []byte) error {
	var wire struct {
		Kind Kind            `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("decode panel: %w", err)
	}
	p.Kind = wire.Kind
	if len(wire.Data) == 0 || bytes.Equal(wire.Data, []byte("null")) {
		p.Data = struct{}{}
	} else {
		p.Data = wire.Data
	}
	return nil
}
