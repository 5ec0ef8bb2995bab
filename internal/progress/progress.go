package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/bubbles/progress"
)

// Reporter receives progress of one crawl stage at a time
type Reporter interface {
	Begin(stage string, total int)
	Step(detail string)
	End()
}

// ProgressTracker renders a spinner with a progress bar for the running stage
type ProgressTracker struct {
	bar   progress.Model
	spin  *spinner.Spinner
	out   io.Writer
	stage string
	total int
	done  int
}

// New creates a tracker writing to w, or stderr when w is nil
func New(w io.Writer) *ProgressTracker {
	if w == nil {
		w = os.Stderr
	}
	return &ProgressTracker{
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		spin: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w)),
		out:  w,
	}
}

// Begin starts a stage of total steps
func (p *ProgressTracker) Begin(stage string, total int) {
	p.stage = stage
	p.total = total
	p.done = 0
	p.spin.Suffix = p.line("")
	p.spin.Start()
}

// Step marks one unit of the stage done
func (p *ProgressTracker) Step(detail string) {
	p.done++
	p.spin.Suffix = p.line(detail)
}

// End stops the spinner and prints the final state of the stage
func (p *ProgressTracker) End() {
	p.spin.Stop()
	fmt.Fprintln(p.out, p.line("done"))
}

// Percent returns the share of the stage completed
func (p *ProgressTracker) Percent() float64 {
	if p.total <= 0 {
		return 0
	}
	return float64(p.done) / float64(p.total)
}

func (p *ProgressTracker) line(detail string) string {
	s := fmt.Sprintf(" %s %s %d/%d", p.stage, p.bar.ViewAs(p.Percent()), p.done, p.total)
	if detail != "" {
		s += " " + detail
	}
	return s
}

// Nop discards progress
type Nop struct{}

func (Nop) Begin(string, int) {}
func (Nop) Step(string)       {}
func (Nop) End()              {}
