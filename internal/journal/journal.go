// Package journal exports committed history steps as JSON and reads such
// journals back.
//
// Steps are immutable once committed, so a journal can be written from a
// snapshot while new steps are being recorded.
package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/stepwise/internal/engine"
	"github.com/dshills/stepwise/internal/engine/history"
)

// Version is the journal format version.
const Version = 1

// ErrInvalidJournal indicates data that is not a journal.
var ErrInvalidJournal = errors.New("invalid journal")

// Payloader is implemented by operations that export their arguments.
type Payloader interface {
	Payload() any
}

// Export encodes steps, oldest first, as a JSON journal for document name.
func Export(name string, steps []*history.Step) ([]byte, error) {
	out := []byte(`{"steps":[]}`)

	var err error
	set := func(path string, v any) {
		if err != nil {
			return
		}
		out, err = sjson.SetBytes(out, path, v)
	}

	set("version", Version)
	set("document", name)
	for i, s := range steps {
		base := fmt.Sprintf("steps.%d", i)
		set(base+".id", s.ID().String())
		set(base+".label", s.Label())
		set(base+".committed", s.Committed().UTC().Format(time.RFC3339Nano))
		set(base+".entries", []any{})

		for j := range s.Len() {
			entry := s.Entry(j)
			eb := fmt.Sprintf("%s.entries.%d", base, j)
			set(eb+".label", entry.Label)
			setCommand(set, eb+".redo", entry.Redo)
			setCommand(set, eb+".undo", entry.Undo)
			if !entry.Post.IsZero() {
				setCommand(set, eb+".post", entry.Post)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("encode journal: %w", err)
	}
	return out, nil
}

func setCommand(set func(string, any), path string, c history.Command) {
	set(path+".op", c.Description())
	if p, ok := c.Op.(Payloader); ok {
		set(path+".args", p.Payload())
	}
}

// Write exports the engine's committed steps to w as indented JSON.
// It may be called from any goroutine.
func Write(ctx context.Context, w io.Writer, eng *engine.Engine, name string) error {
	steps, err := eng.Steps(ctx)
	if err != nil {
		return err
	}
	data, err := Export(name, steps)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}
