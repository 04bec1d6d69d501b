package pipeline

import "fmt"

// StepCounter tracks planned work across the whole pipeline. Skipped steps
// still advance it.
type StepCounter struct {
	step  int
	total int
}

// SizeFor sets the total: one step per model, plus one per (model, test)
// pair and one per report unless this is a dry run.
func (c *StepCounter) SizeFor(models, testPairs, reports int, dryRun bool) {
	c.step = 0
	c.total = models
	if !dryRun {
		c.total += testPairs + reports
	}
}

// Advance moves to the next step and returns its log prefix.
func (c *StepCounter) Advance() string {
	c.step++
	return c.Prefix()
}

// Prefix renders the current position as "[Step i/total]".
func (c *StepCounter) Prefix() string {
	return fmt.Sprintf("[Step %d/%d]", c.step, c.total)
}

func (c *StepCounter) Step() int  { return c.step }
func (c *StepCounter) Total() int { return c.total }
