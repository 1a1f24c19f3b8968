package order

import (
	"math/rand/v2"

	"github.com/bwmarrin/snowflake"
	"github.com/go-faster/errors"
)

const numberPrefix = "ORD"

// NumberGenerator issues human-readable order numbers of the form
// ORD<snowflake>: a millisecond timestamp, a node id and a sequence.
type NumberGenerator struct {
	node *snowflake.Node
}

// NewNumberGenerator creates a generator for node. A negative node picks a
// random one, which keeps collisions unlikely when replicas share no config.
func NewNumberGenerator(node int64) (*NumberGenerator, error) {
	if node < 0 {
		node = rand.Int64N(1 << snowflake.NodeBits)
	}
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, errors.Wrapf(err, "snowflake node %d", node)
	}
	return &NumberGenerator{node: n}, nil
}

// Next returns a new order number.
func (g *NumberGenerator) Next() string {
	return numberPrefix + g.node.Generate().String()
}
