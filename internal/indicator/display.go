package indicator

import (
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lordvcs/ccusage_indicator/internal/usage"
)

type State string

const (
	StateLoading    State = "loading"
	StateRefreshing State = "refreshing"
	StateReady      State = "ready"
)

// View is one atomic display update: label and status always travel together.
type View struct {
	State         State
	Label         string
	Status        string
	Snapshot      *usage.Snapshot
	NextRefreshAt time.Time
	UpdatedAt     time.Time
}

// Display receives every update from the controller loop, one at a time.
type Display interface {
	Update(View)
}

type DisplayFunc func(View)

func (f DisplayFunc) Update(v View) { f(v) }

// barLine is the custom-module format understood by waybar and similar bars.
type barLine struct {
	Text       string `json:"text"`
	Tooltip    string `json:"tooltip"`
	Class      string `json:"class"`
	Percentage *int   `json:"percentage,omitempty"`
}

// LineDisplay writes one JSON object per update for status bars.
type LineDisplay struct {
	enc    *json.Encoder
	logger *zap.Logger
}

func NewLineDisplay(w io.Writer, logger *zap.Logger) *LineDisplay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineDisplay{enc: json.NewEncoder(w), logger: logger}
}

func (d *LineDisplay) Update(v View) {
	line := barLine{
		Text:    v.Label,
		Tooltip: v.Status,
		Class:   string(v.State),
	}
	if v.State == StateReady && v.Snapshot != nil {
		line.Class = string(v.Snapshot.Outcome)
		line.Percentage = v.Snapshot.Metrics.PercentageConsumed
	}
	if err := d.enc.Encode(line); err != nil {
		d.logger.Warn("failed to write status line", zap.Error(err))
	}
}
