package constants

import "time"

const (
	MaxConditionTreeDepth = 10
	MaxConditionTreeNodes = 1000
	MaxConditionArrayLen  = 100
	MaxRuleSetMembers     = 100
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
	MaxAuditLimit    = 1000
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CapabilityCachePrefix = "caps:"
	CapabilityCacheTTL    = 5 * time.Minute
)
