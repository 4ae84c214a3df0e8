package config

import "time"

const (
	DefaultRPCListenAddr      = ":8545"
	DefaultMetricsListenAddr  = ":9100"
	DefaultRateLimitPerMinute = 120
	DefaultTriggerInterval    = time.Second
	DefaultDataDir            = "./data"
)
