package preprocess

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
)

var figureFileName = regexp.MustCompile(`^page_(\d+)_figure_(\d+)\.png$`)

func FigureFileName(page, n int) string {
	return fmt.Sprintf("page_%d_figure_%d.png", page, n)
}

// FigureCounter numbers figures per absolute page, starting at 1.
type FigureCounter struct {
	mu   sync.Mutex
	last map[int]int
}

func NewFigureCounter() *FigureCounter {
	return &FigureCounter{last: make(map[int]int)}
}

// Next reserves the next index for page.
func (c *FigureCounter) Next(page int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[page]++
	return c.last[page]
}

// Seed raises each page's counter to the highest index already saved in dir.
// It is the recovery path for resuming an interrupted run.
func (c *FigureCounter) Seed(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		m := figureFileName.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		page, _ := strconv.Atoi(m[1])
		n, _ := strconv.Atoi(m[2])
		if n > c.last[page] {
			c.last[page] = n
		}
	}
	return nil
}
