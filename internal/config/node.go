package config

import "github.com/bwmarrin/snowflake"

// NewSnowflakeNode returns the id generator for this process.
func NewSnowflakeNode(cfg Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
