package types

import "time"

type TurnStatus string

const (
	TurnSucceeded        TurnStatus = "SUCCEEDED"
	TurnDecisionTimeout  TurnStatus = "DECISION_TIMEOUT"
	TurnDecisionError    TurnStatus = "DECISION_ERROR"
	TurnPersistenceError TurnStatus = "PERSISTENCE_ERROR"
	TurnCancelled        TurnStatus = "CANCELLED"
	TurnFailed           TurnStatus = "FAILED"
)

type TurnOutcome struct {
	Trader    string           `json:"trader"`
	Cycle     int              `json:"cycle"`
	Status    TurnStatus       `json:"status"`
	Applied   []Transaction    `json:"applied"`
	Rejected  []RejectedOrder  `json:"rejected"`
	Valuation *ValuationSample `json:"valuation,omitempty"`
	Err       error            `json:"-"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
}

func (o TurnOutcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

func (o TurnOutcome) Succeeded() bool {
	return o.Status == TurnSucceeded
}

func (o TurnOutcome) ErrString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type TraderStats struct {
	Name           string     `json:"name"`
	TurnsAttempted int        `json:"turns_attempted"`
	TurnsSucceeded int        `json:"turns_succeeded"`
	Failures       int        `json:"failures"`
	LastStatus     TurnStatus `json:"last_status,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	Busy           bool       `json:"busy"`
}

type FloorState string

const (
	FloorIdle     FloorState = "IDLE"
	FloorRunning  FloorState = "RUNNING"
	FloorStopping FloorState = "STOPPING"
)

type FloorStatus struct {
	State   FloorState             `json:"state"`
	Cycle   int                    `json:"cycle"`
	Traders map[string]TraderStats `json:"traders"`
}

type CycleReport struct {
	Cycle     int           `json:"cycle"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Outcomes  []TurnOutcome `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}
