package testutil

// DefaultFlowToken is used when a scenario does not name its own token.
const DefaultFlowToken = "test-flow-default"

// FixedFlowGenerator hands every request the same flow token, so a rerun
// of a scenario stamps identical entry IDs and golden traces stay stable.
//
// engine.FixedGenerator walks a list and panics when it runs out; this one
// never runs out. Stateless, so safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator returns a generator for token, or for
// DefaultFlowToken when token is empty.
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = DefaultFlowToken
	}
	return &FixedFlowGenerator{token: token}
}

// Generate implements engine.FlowTokenGenerator.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
