package engine

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

const summaryHeader = "iid,time_sec,state,score,best_score_known\n"

// SummaryWriter appends one CSV row per finished job to summary.csv. Rows
// are built in full and written with a single O_APPEND write under a lock,
// so every row is an atomic line even when SIGINT cuts the run short.
type SummaryWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewSummaryWriter creates summary.csv at path and writes the header.
func NewSummaryWriter(path string) (*SummaryWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create run summary %s: %w", path, err)
	}
	if _, err := f.WriteString(summaryHeader); err != nil {
		f.Close()
		return nil, err
	}
	return &SummaryWriter{file: f}, nil
}

// Append writes the row for one outcome and syncs it to disk so a crash
// loses at most the in-flight row.
func (w *SummaryWriter) Append(o *Outcome) error {
	row := formatRow(o)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.WriteString(row); err != nil {
		return fmt.Errorf("append run summary: %w", err)
	}
	return w.file.Sync()
}

// Close closes the file.
func (w *SummaryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func formatRow(o *Outcome) string {
	score := ""
	if o.Score != nil {
		score = strconv.Itoa(*o.Score)
	}
	best := ""
	if o.BestKnown != nil {
		best = strconv.Itoa(*o.BestKnown)
	}
	return fmt.Sprintf("%d,%s,%s,%s,%s\n",
		o.IID,
		strconv.FormatFloat(o.Wall.Seconds(), 'f', 3, 64),
		o.State,
		score,
		best,
	)
}
