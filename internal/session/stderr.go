package session

import (
	"bufio"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// stderrCapture drains the target's secondary output stream. Its content is
// diagnostic text only and is never parsed as protocol traffic; the most
// recent lines are kept for the run report.
type stderrCapture struct {
	logger   *logrus.Logger
	maxLines int

	mu    sync.Mutex
	lines []string
}

func newStderrCapture(logger *logrus.Logger, maxLines int) *stderrCapture {
	return &stderrCapture{
		logger:   logger,
		maxLines: maxLines,
	}
}

func (c *stderrCapture) run(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		c.logger.WithField("stderr", line).Debug("Target diagnostic output")

		c.mu.Lock()
		c.lines = append(c.lines, line)
		if len(c.lines) > c.maxLines {
			c.lines = c.lines[len(c.lines)-c.maxLines:]
		}
		c.mu.Unlock()
	}
}

func (c *stderrCapture) tail() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}
