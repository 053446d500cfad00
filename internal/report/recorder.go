// Package report turns floor activity into CSV files and console tables.
package report

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/types"
)

// CycleRow is one trader's turn in one cycle.
type CycleRow struct {
	Run        string `csv:"run"`
	Cycle      int    `csv:"cycle"`
	Trader     string `csv:"trader"`
	Status     string `csv:"status"`
	Applied    int    `csv:"applied"`
	Rejected   int    `csv:"rejected"`
	Value      string `csv:"portfolio_value"`
	Started    string `csv:"started"`
	DurationMS int64  `csv:"duration_ms"`
	Error      string `csv:"error"`
}

// Recorder keeps every turn outcome it is handed. Rows carry the time of the
// first Record so runs sharing a day's file stay distinguishable.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	now     func() time.Time
	run     string
	rows    []CycleRow
	flushed int
}

var _ interfaces.Reporter = (*Recorder)(nil)

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = "reports"
	}
	return &Recorder{dir: dir, now: time.Now}
}

// WithClock replaces time.Now for the report file date.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

func (r *Recorder) Record(report types.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == "" {
		r.run = r.now().UTC().Format(time.RFC3339)
	}

	for _, o := range report.Outcomes {
		row := CycleRow{
			Run:        r.run,
			Cycle:      report.Cycle,
			Trader:     o.Trader,
			Status:     string(o.Status),
			Applied:    len(o.Applied),
			Rejected:   len(o.Rejected),
			Started:    o.Started.UTC().Format(time.RFC3339),
			DurationMS: o.Duration().Milliseconds(),
			Error:      o.ErrString(),
		}
		if o.Valuation != nil {
			row.Value = o.Valuation.Value.StringFixed(2)
		}
		r.rows = append(r.rows, row)
	}
	return nil
}

func (r *Recorder) Rows() []CycleRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CycleRow(nil), r.rows...)
}

// Flush appends the rows recorded since the last Flush to
// dir/cycles-<date>.csv, writing the header only when the file is new. It
// returns "" when nothing was ever recorded.
func (r *Recorder) Flush() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) == 0 {
		return "", nil
	}

	out := filepath.Join(r.dir, "cycles-"+r.now().UTC().Format("2006-01-02")+".csv")
	pending := r.rows[r.flushed:]
	if len(pending) == 0 {
		return out, nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() > 0 {
		err = gocsv.MarshalWithoutHeaders(&pending, f)
	} else {
		err = gocsv.MarshalFile(&pending, f)
	}
	if err != nil {
		return "", err
	}
	r.flushed = len(r.rows)
	return out, nil
}
