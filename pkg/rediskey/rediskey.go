package rediskey

import "fmt"

// Sequence keys (global convention across services)
const (
	SequencePrefix          = "seq"
	ExecutionSequencePrefix = "seq:execution"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildExecutionSequenceKey returns "seq:execution:{tenantID}:{yyyymmdd}",
// the daily counter behind execution numbers.
func BuildExecutionSequenceKey(tenantID, datePrefix string) string {
	return NamespaceKey(ExecutionSequencePrefix, fmt.Sprintf("%s:%s", tenantID, datePrefix))
}
