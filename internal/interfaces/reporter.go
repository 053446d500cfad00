package interfaces

import "ai-trading-floor/internal/types"

type Reporter interface {
	Record(report types.CycleReport) error
	Flush() (csvPath string, err error)
}
