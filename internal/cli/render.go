package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/diligence/internal/models"
)

// lineRenderer prints one line per visible change. Used when stdout is
// not a terminal.
type lineRenderer struct {
	w        io.Writer
	lastText string
	lastPct  int
	started  bool
}

func newLineRenderer(w io.Writer) *lineRenderer {
	return &lineRenderer{w: w}
}

// Render matches the signature expected by service.Poll.
func (r *lineRenderer) Render(snap models.Snapshot) {
	pct := int(snap.Progress * 100)
	if r.started && pct == r.lastPct && snap.StatusText == r.lastText {
		return
	}
	r.started = true
	r.lastPct = pct
	r.lastText = snap.StatusText

	if snap.Failed() {
		fmt.Fprintf(r.w, "[%3d%%] Error: %s\n", pct, *snap.Error)
		return
	}
	fmt.Fprintf(r.w, "[%3d%%] %s\n", pct, snap.StatusText)
}
