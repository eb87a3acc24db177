package gen

import (
	"taskmarket-ledger/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewSnowflakeNode))

// NewSnowflakeNode returns the id node for this process. Each replica needs
// its own SNOWFLAKE.NODE_ID (0-1023).
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.NodeID)
}
