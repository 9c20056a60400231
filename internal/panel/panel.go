// Package panel draws the undo/redo affordances of an engine on a terminal
// screen. A Panel is a history notifier: it redraws whenever the history
// changes.
package panel

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/stepwise/internal/engine/history"
)

// Ellipsis marks truncated labels.
const Ellipsis = "…"

// Rect is the screen area of a panel.
type Rect struct {
	X, Y, W, H int
}

// Styles used by the panel.
var (
	StyleEnabled  = tcell.StyleDefault.Bold(true)
	StyleDisabled = tcell.StyleDefault.Foreground(tcell.ColorGray)
	StyleStatus   = tcell.StyleDefault.Dim(true)
)

// Panel renders history state into a rectangle of a screen.
type Panel struct {
	mu     sync.Mutex
	screen tcell.Screen
	rect   Rect
	state  history.State
	draws  int
}

// New creates a panel drawing into rect of screen.
func New(screen tcell.Screen, rect Rect) *Panel {
	return &Panel{screen: screen, rect: rect}
}

// OnHistoryChanged redraws the panel.
func (p *Panel) OnHistoryChanged(s history.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = s
	p.drawLocked()
	p.screen.Show()
}

// Draw redraws the panel with the last state.
func (p *Panel) Draw() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawLocked()
}

// Resize moves the panel and redraws it.
func (p *Panel) Resize(rect Rect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clear()
	p.rect = rect
	p.drawLocked()
	p.screen.Show()
}

// State returns the last state drawn.
func (p *Panel) State() history.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Draws returns how many times the panel was drawn.
func (p *Panel) Draws() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draws
}

func (p *Panel) drawLocked() {
	p.draws++
	p.clear()

	lines := []line{
		affordance("Undo", p.state.CanUndo, p.state.UndoLabel),
		affordance("Redo", p.state.CanRedo, p.state.RedoLabel),
		{fmt.Sprintf("%d undo, %d redo", p.state.UndoCount, p.state.RedoCount), StyleStatus},
	}
	for i, l := range lines {
		if i >= p.rect.H {
			break
		}
		p.put(p.rect.Y+i, l.text, l.style)
	}
}

type line struct {
	text  string
	style tcell.Style
}

func affordance(verb string, enabled bool, label string) line {
	if !enabled {
		return line{verb, StyleDisabled}
	}
	return line{verb + ": " + label, StyleEnabled}
}

func (p *Panel) clear() {
	for y := p.rect.Y; y < p.rect.Y+p.rect.H; y++ {
		for x := p.rect.X; x < p.rect.X+p.rect.W; x++ {
			p.screen.SetContent(x, y, ' ', nil, tcell.StyleDefault)
		}
	}
}

// put draws text on row y, truncated to the panel width.
func (p *Panel) put(y int, text string, style tcell.Style) {
	x := p.rect.X
	state := -1
	rest := Truncate(text, p.rect.W)
	for rest != "" {
		var cluster string
		var width int
		cluster, rest, width, state = uniseg.FirstGraphemeClusterInString(rest, state)
		runes := []rune(cluster)
		p.screen.SetContent(x, y, runes[0], runes[1:], style)
		x += width
	}
}

// Truncate shortens s to at most width terminal cells, ending it with
// Ellipsis when something was cut. Grapheme clusters are never split.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}

	limit := width - uniseg.StringWidth(Ellipsis)
	out := make([]byte, 0, len(s))
	used := 0
	state := -1
	rest := s
	for rest != "" {
		var cluster string
		var w int
		cluster, rest, w, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if used+w > limit {
			break
		}
		out = append(out, cluster...)
		used += w
	}
	return string(out) + Ellipsis
}
