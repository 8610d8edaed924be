package nutrition

import "fmt"

// QuotaKind names a per-user daily counter
type QuotaKind string

const (
	QuotaLookup   QuotaKind = "lookup"
	QuotaAnalysis QuotaKind = "analysis"
)

// LimitReached reports an exhausted daily quota. It is returned as an error
// by remote calls so callers can route it with errors.As.
type LimitReached struct {
	Kind  QuotaKind `json:"kind"`
	Limit int       `json:"limit"`
	Used  int       `json:"used"`
}

func (l *LimitReached) Error() string {
	return fmt.Sprintf("daily %s limit reached (%d/%d)", l.Kind, l.Used, l.Limit)
}
