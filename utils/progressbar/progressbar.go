// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar implements a progress bar that must be manually managed:
// the Display() function must be called whenever an updated progress
// bar should be printed to the screen.
type ProgressBar struct {
	width           float64
	maxProgress     float64
	currentProgress float64
	bar             strings.Builder
	startTime       time.Time
}

// New returns a new ProgressBar that is width characters wide and
// reaches 100% capacity after max Increment() calls.
func New(width, max int) *ProgressBar {
	return &ProgressBar{
		width:           float64(width),
		maxProgress:     float64(max),
		currentProgress: 0,
		startTime:       time.Now(),
	}
}

// Increment increments the interal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Display displays the progress bar on the screen, overwriting the
// previously displayed bar.
func (p *ProgressBar) Display() {
	p.bar.Reset()
	p.bar.Write([]byte("|"))

	currentProg := p.currentProgress / p.maxProgress * p.width
	for i := 0.0; i < currentProg; i++ {
		p.bar.Write([]byte("█"))
	}
	for i := currentProg; i < p.width; i++ {
		p.bar.Write([]byte(" "))
	}
	p.bar.Write([]byte(fmt.Sprintf("| [%.2f%v | elapsed: %v]",
		p.currentProgress/p.maxProgress*100, "%",
		time.Since(p.startTime).Truncate(time.Second))))

	fmt.Printf("\n\033[1A\033[K%v", p.bar.String())
}

// Close jumps to the line below the printed progress bar so that
// subsequent output does not overwrite it.
func (p *ProgressBar) Close() {
	fmt.Println()
}
