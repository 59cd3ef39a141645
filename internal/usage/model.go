package usage

import "time"

// Report is the parsed `blocks --json` payload.
type Report struct {
	Blocks []SessionBlock `json:"blocks"`
}

// SessionBlock is one usage window. Numeric fields are nil when absent or
// not a JSON number.
type SessionBlock struct {
	Active      bool        `json:"is_active"`
	TotalTokens *float64    `json:"total_tokens,omitempty"`
	EndTime     *string     `json:"end_time,omitempty"`
	Projection  *Projection `json:"projection,omitempty"`
}

type Projection struct {
	RemainingMinutes *float64 `json:"remaining_minutes,omitempty"`
	TotalTokens      *float64 `json:"total_tokens,omitempty"`
}

// ActiveBlock returns the first block flagged active, in report order.
func (r *Report) ActiveBlock() (*SessionBlock, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Blocks {
		if r.Blocks[i].Active {
			return &r.Blocks[i], true
		}
	}
	return nil, false
}

// Metrics are the figures derived from the active block for one refresh.
type Metrics struct {
	RemainingMinutes   *int `json:"remaining_minutes,omitempty"`
	PercentageConsumed *int `json:"percentage_consumed,omitempty"`
}

type Outcome string

const (
	OutcomeActive    Outcome = "active"
	OutcomeNoSession Outcome = "no_session"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeEnded     Outcome = "ended"
	OutcomeError     Outcome = "error"
)

// Snapshot is the rendered result of one refresh pipeline run.
type Snapshot struct {
	Outcome       Outcome   `json:"outcome"`
	Label         string    `json:"label"`
	Status        string    `json:"status"`
	Metrics       Metrics   `json:"metrics"`
	TokenLimit    *int64    `json:"token_limit,omitempty"`
	ErrorCategory string    `json:"error_category,omitempty"`
	Error         string    `json:"error,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`

	Err error `json:"-"`
}
