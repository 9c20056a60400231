// Package script runs Lua scripts against a scene document.
//
// A script runs on the caller's goroutine. Every scene and history call it
// makes is marshalled to the engine's owner goroutine and waits for the
// result, so scripts run from several goroutines act as independent
// producers. history.transaction runs its function on the owner goroutine
// inside one transaction, so everything it changes undoes as one step.
//
// The Lua state only opens the base, table, string and math libraries.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stepwise/internal/engine"
	"github.com/dshills/stepwise/internal/scene"
)

// ErrScript wraps errors raised by scripts.
var ErrScript = errors.New("script error")

// Runner runs scripts against one document.
type Runner struct {
	doc *scene.Document
	eng *engine.Engine
	log *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Script print output is logged at info level.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a runner for doc.
func New(doc *scene.Document, opts ...Option) *Runner {
	r := &Runner{
		doc: doc,
		eng: doc.Engine(),
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "script")
	return r
}

// RunFile runs the script at path.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return r.Run(ctx, path, string(code))
}

// Run runs code. name identifies the script in errors and logs.
func (r *Runner) Run(ctx context.Context, name, code string) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	s := &session{r: r, L: L, ctx: ctx, name: name}
	s.open()

	fn, err := L.LoadString(code)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScript, name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScript, name, err)
	}
	r.log.Debug("script finished", "script", name)
	return nil
}

// session is the state of one script run.
type session struct {
	r    *Runner
	L    *lua.LState
	name string

	// ctx is swapped for the transaction context while a
	// history.transaction function runs.
	ctx context.Context
}

// open installs the libraries and API modules.
func (s *session) open() {
	L := s.L
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	L.SetTop(0)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(s.print))

	L.SetGlobal("scene", s.sceneModule())
	L.SetGlobal("history", s.historyModule())
}

// print(...) logs its arguments.
func (s *session) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	s.r.log.Info(strings.Join(parts, "\t"), "script", s.name)
	return 0
}

// call runs fn on the owner goroutine, inline when already there.
func (s *session) call(fn func(ctx context.Context) error) error {
	return s.r.eng.Owner().RunOnOwnerAndWait(s.ctx, fn)
}

// check raises a Lua error for err.
func (s *session) check(what string, err error) {
	if err != nil {
		s.L.RaiseError("%s: %v", what, err)
	}
}
