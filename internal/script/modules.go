package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stepwise/internal/engine"
	"github.com/dshills/stepwise/internal/engine/property"
	"github.com/dshills/stepwise/internal/scene"
)

func (s *session) sceneModule() *lua.LTable {
	L := s.L
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"add":       s.add,
		"remove":    s.remove,
		"move":      s.move,
		"resize":    s.resize,
		"set":       s.set,
		"tint":      s.tint,
		"group":     s.group,
		"ungroup":   s.ungroup,
		"select":    s.selectIDs,
		"selection": s.selection,
		"crosshair": s.crosshair,
		"get":       s.get,
		"list":      s.list,
		"count":     s.count,
	})
	return mod
}

func (s *session) historyModule() *lua.LTable {
	L := s.L
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"undo":        s.undo,
		"redo":        s.redo,
		"can_undo":    s.canUndo,
		"can_redo":    s.canRedo,
		"undo_label":  s.undoLabel,
		"count":       s.stepCount,
		"transaction": s.transaction,
	})
	return mod
}

func (s *session) checkID(n int) uuid.UUID {
	id, err := uuid.Parse(s.L.CheckString(n))
	if err != nil {
		s.L.ArgError(n, "invalid component id")
	}
	return id
}

func (s *session) checkIDs(n int) []uuid.UUID {
	tbl := s.L.CheckTable(n)
	var ids []uuid.UUID
	for i := 1; i <= tbl.Len(); i++ {
		v, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok {
			s.L.ArgError(n, "expected a list of component ids")
		}
		id, err := uuid.Parse(string(v))
		if err != nil {
			s.L.ArgError(n, "invalid component id")
		}
		ids = append(ids, id)
	}
	return ids
}

// add(name, x, y, w, h) -> id
func (s *session) add(L *lua.LState) int {
	name := L.CheckString(1)
	pos := scene.Point{X: L.CheckInt(2), Y: L.CheckInt(3)}
	size := scene.Size{W: L.OptInt(4, 0), H: L.OptInt(5, 0)}

	var id uuid.UUID
	s.check("add", s.call(func(ctx context.Context) error {
		var err error
		id, err = s.r.doc.Add(ctx, name, pos, size)
		return err
	}))
	L.Push(lua.LString(id.String()))
	return 1
}

// remove(id)
func (s *session) remove(L *lua.LState) int {
	id := s.checkID(1)
	s.check("remove", s.call(func(ctx context.Context) error {
		return s.r.doc.Remove(ctx, id)
	}))
	return 0
}

// move(id, x, y)
func (s *session) move(L *lua.LState) int {
	id := s.checkID(1)
	pos := scene.Point{X: L.CheckInt(2), Y: L.CheckInt(3)}
	s.check("move", s.call(func(ctx context.Context) error {
		return s.r.doc.Move(ctx, id, pos)
	}))
	return 0
}

// resize(id, w, h)
func (s *session) resize(L *lua.LState) int {
	id := s.checkID(1)
	size := scene.Size{W: L.CheckInt(2), H: L.CheckInt(3)}
	s.check("resize", s.call(func(ctx context.Context) error {
		return s.r.doc.Resize(ctx, id, size)
	}))
	return 0
}

// set(id, feature, value). The fill feature takes a hex string.
func (s *session) set(L *lua.LState) int {
	id := s.checkID(1)
	f := property.Feature(L.CheckString(2))
	v := L.CheckAny(3)

	s.check("set", s.call(func(ctx context.Context) error {
		switch {
		case f == scene.FeatureFill:
			return s.r.doc.SetFill(ctx, id, lua.LVAsString(v))
		case v.Type() == lua.LTBool:
			return s.r.doc.Set(ctx, id, f, lua.LVAsBool(v))
		case v.Type() == lua.LTString:
			return s.r.doc.Set(ctx, id, f, lua.LVAsString(v))
		default:
			return fmt.Errorf("unsupported value type %s", v.Type())
		}
	}))
	return 0
}

// tint(id, hex, t)
func (s *session) tint(L *lua.LState) int {
	id := s.checkID(1)
	hex := L.CheckString(2)
	t := float64(L.OptNumber(3, 0.5))
	s.check("tint", s.call(func(ctx context.Context) error {
		return s.r.doc.Tint(ctx, id, hex, t)
	}))
	return 0
}

// group(name, {ids}) -> id
func (s *session) group(L *lua.LState) int {
	name := L.CheckString(1)
	ids := s.checkIDs(2)

	var gid uuid.UUID
	s.check("group", s.call(func(ctx context.Context) error {
		var err error
		gid, err = s.r.doc.Group(ctx, name, ids...)
		return err
	}))
	L.Push(lua.LString(gid.String()))
	return 1
}

// ungroup(id)
func (s *session) ungroup(L *lua.LState) int {
	id := s.checkID(1)
	s.check("ungroup", s.call(func(ctx context.Context) error {
		return s.r.doc.Ungroup(ctx, id)
	}))
	return 0
}

// select({ids})
func (s *session) selectIDs(L *lua.LState) int {
	ids := s.checkIDs(1)
	s.check("select", s.call(func(ctx context.Context) error {
		return s.r.doc.Select(ctx, ids...)
	}))
	return 0
}

// selection() -> {ids}
func (s *session) selection(L *lua.LState) int {
	tbl := L.NewTable()
	for _, id := range s.r.doc.Selection(s.ctx) {
		tbl.Append(lua.LString(id.String()))
	}
	L.Push(tbl)
	return 1
}

// crosshair(x, y)
func (s *session) crosshair(L *lua.LState) int {
	pos := scene.Point{X: L.CheckInt(1), Y: L.CheckInt(2)}
	s.check("crosshair", s.call(func(ctx context.Context) error {
		return s.r.doc.TrackCrosshair(ctx, pos)
	}))
	return 0
}

// get(id) -> table, or nil if there is no such component
func (s *session) get(L *lua.LState) int {
	id := s.checkID(1)
	in, err := s.r.doc.Get(s.ctx, id)
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}

	tbl := L.NewTable()
	tbl.RawSetString("id", lua.LString(in.ID.String()))
	tbl.RawSetString("name", lua.LString(in.Name))
	tbl.RawSetString("x", lua.LNumber(in.Pos.X))
	tbl.RawSetString("y", lua.LNumber(in.Pos.Y))
	tbl.RawSetString("w", lua.LNumber(in.Size.W))
	tbl.RawSetString("h", lua.LNumber(in.Size.H))
	tbl.RawSetString("visible", lua.LBool(in.Visible))
	tbl.RawSetString("fill", lua.LString(in.Fill))
	tbl.RawSetString("group", lua.LBool(in.Group))
	L.Push(tbl)
	return 1
}

// list() -> {ids} of top-level components
func (s *session) list(L *lua.LState) int {
	tbl := L.NewTable()
	for _, in := range s.r.doc.List(s.ctx) {
		tbl.Append(lua.LString(in.ID.String()))
	}
	L.Push(tbl)
	return 1
}

// count() -> number of attached components
func (s *session) count(L *lua.LState) int {
	L.Push(lua.LNumber(s.r.doc.Len(s.ctx)))
	return 1
}

// undo() -> bool, false when there is nothing to undo
func (s *session) undo(L *lua.LState) int {
	err := s.call(s.r.eng.Undo)
	return s.replayed(L, "undo", err, engine.ErrNothingToUndo)
}

// redo() -> bool, false when there is nothing to redo
func (s *session) redo(L *lua.LState) int {
	err := s.call(s.r.eng.Redo)
	return s.replayed(L, "redo", err, engine.ErrNothingToRedo)
}

func (s *session) replayed(L *lua.LState, what string, err, empty error) int {
	if errors.Is(err, empty) {
		L.Push(lua.LFalse)
		return 1
	}
	s.check(what, err)
	L.Push(lua.LTrue)
	return 1
}

// can_undo() -> bool
func (s *session) canUndo(L *lua.LState) int {
	v, err := s.r.eng.CanUndo(s.ctx)
	s.check("can_undo", err)
	L.Push(lua.LBool(v))
	return 1
}

// can_redo() -> bool
func (s *session) canRedo(L *lua.LState) int {
	v, err := s.r.eng.CanRedo(s.ctx)
	s.check("can_redo", err)
	L.Push(lua.LBool(v))
	return 1
}

// undo_label() -> string
func (s *session) undoLabel(L *lua.LState) int {
	st, err := s.r.eng.State(s.ctx)
	s.check("undo_label", err)
	L.Push(lua.LString(st.UndoLabel))
	return 1
}

// count() -> number of undo steps
func (s *session) stepCount(L *lua.LState) int {
	st, err := s.r.eng.State(s.ctx)
	s.check("count", err)
	L.Push(lua.LNumber(st.UndoCount))
	return 1
}

// transaction(label, fn) runs fn on the owner goroutine inside one
// transaction. Changes made before fn raises an error stay recorded.
//
// The owner runs this session's LState while fn executes, so the producer
// must not return before it does. Cancellation still reaches fn through the
// state's context and ends it on the owner.
func (s *session) transaction(L *lua.LState) int {
	label := L.CheckString(1)
	fn := L.CheckFunction(2)

	owner := s.r.eng.Owner()
	s.check("transaction", owner.RunOnOwnerAndWait(context.WithoutCancel(s.ctx), func(ctx context.Context) error {
		return s.r.eng.Mutate(ctx, s.r.doc.DataLock(), label, func(ctx context.Context, tx *engine.Tx) error {
			prev := s.ctx
			s.ctx = ctx
			defer func() { s.ctx = prev }()

			L.Push(fn)
			return L.PCall(0, 0, nil)
		})
	}))
	return 0
}
