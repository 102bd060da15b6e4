package referral

import (
	"math/rand"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
)

// AgentSelector picks the agent for the i-th user of a batch. agents is
// never empty.
type AgentSelector interface {
	Pick(agents []balance.Record, i int) balance.Record
}

// RandomSelector picks uniformly at random and ignores the position.
type RandomSelector struct {
	// IntN returns a value in [0, n). Defaults to math/rand.
	IntN func(n int) int
}

func (s RandomSelector) Pick(agents []balance.Record, _ int) balance.Record {
	intN := s.IntN
	if intN == nil {
		intN = rand.Intn
	}
	return agents[intN(len(agents))]
}

// RoundRobinSelector cycles through agents by position.
type RoundRobinSelector struct{}

func (RoundRobinSelector) Pick(agents []balance.Record, i int) balance.Record {
	return agents[i%len(agents)]
}
