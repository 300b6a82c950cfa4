package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/tanq16/hlsget/internal/output"
)

// Terminal prints styled one-line events for jobs reaching an outcome.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// ShowProgress is a no-op; live progress belongs to the display manager.
func (t *Terminal) ShowProgress(int64, int) {}

func (t *Terminal) ShowSuccess(id int64, fileName string) {
	t.print(output.FSuccess(fmt.Sprintf("%s [%d] %s downloaded", output.StyleSymbols["pass"], id, fileName)))
}

func (t *Terminal) ShowFailure(id int64, fileName string) {
	t.print(output.FError(fmt.Sprintf("%s [%d] %s failed", output.StyleSymbols["fail"], id, fileName)))
}

func (t *Terminal) Cancel(id int64) {
	t.print(output.FDebug(fmt.Sprintf("%s [%d] removed", output.StyleSymbols["dot"], id)))
}

func (t *Terminal) print(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, line)
}
