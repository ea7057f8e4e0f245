package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	m "gooze.dev/pkg/luacover/internal/model"
)

// TrackGlobal is the global instrumented chunks call to bind their
// tracking functions.
const TrackGlobal = "__coverage_track"

// Recorder receives the calls made by instrumented chunks.
type Recorder interface {
	Hit(file m.Path, line int)
	// Enter receives the id of the function record being entered.
	Enter(file m.Path, function int)
	Guard(file m.Path, line int, value bool)
}

// ChunkSource returns the text to execute for a file: its rewrite when it
// was instrumented, its content otherwise.
type ChunkSource func(path m.Path) ([]byte, error)

// LuaRunOptions configures one script execution.
type LuaRunOptions struct {
	Recorder Recorder
	Source   ChunkSource
	// Stdout receives print output; os.Stdout when nil.
	Stdout io.Writer
	// Args become the script's `arg` table.
	Args []string
}

// LuaRuntimeAdapter executes Lua scripts.
type LuaRuntimeAdapter interface {
	// Run executes script and every file it loads through dofile, loadfile
	// or require. Lua errors are returned as model.ErrRuntime.
	Run(ctx context.Context, script m.Path, opts LuaRunOptions) error
}

// LocalLuaRuntimeAdapter runs scripts in a gopher-lua state.
type LocalLuaRuntimeAdapter struct{}

// NewLocalLuaRuntimeAdapter constructs a LocalLuaRuntimeAdapter.
func NewLocalLuaRuntimeAdapter() *LocalLuaRuntimeAdapter {
	return &LocalLuaRuntimeAdapter{}
}

type luaHost struct {
	state  *lua.LState
	opts   LuaRunOptions
	base   string
	stdout io.Writer
}

// Run creates a fresh state per call. Relative paths given to dofile,
// loadfile and require resolve against the script's directory first.
func (a *LocalLuaRuntimeAdapter) Run(ctx context.Context, script m.Path, opts LuaRunOptions) error {
	if script == "" {
		return m.NewError(m.KindValidation, script, 0, errors.New("no script to run"))
	}

	if opts.Source == nil {
		opts.Source = func(path m.Path) ([]byte, error) { return os.ReadFile(string(path)) }
	}

	state := lua.NewState()
	defer state.Close()

	state.SetContext(ctx)

	h := &luaHost{state: state, opts: opts, base: filepath.Dir(string(script)), stdout: opts.Stdout}
	if h.stdout == nil {
		h.stdout = os.Stdout
	}

	h.install(script)

	fn, err := h.load(m.NormalizePath(script))
	if err != nil {
		return err
	}

	state.Push(fn)

	if err := state.PCall(0, lua.MultRet, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return m.NewError(m.KindRuntime, script, 0, err)
	}

	return nil
}

func (h *luaHost) install(script m.Path) {
	L := h.state

	L.SetGlobal(TrackGlobal, L.NewFunction(h.track))
	L.SetGlobal("print", L.NewFunction(h.print))
	L.SetGlobal("dofile", L.NewFunction(h.dofile))
	L.SetGlobal("loadfile", L.NewFunction(h.loadfile))

	args := L.NewTable()
	args.RawSetInt(0, lua.LString(script))

	for i, a := range h.opts.Args {
		args.RawSetInt(i+1, lua.LString(a))
	}

	L.SetGlobal("arg", args)

	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		if loaders, ok := L.GetField(pkg, "loaders").(*lua.LTable); ok {
			loaders.Insert(2, L.NewFunction(h.require))
		}
	}
}

// resolve maps a path seen by the script to the file's key.
func (h *luaHost) resolve(name string) m.Path {
	if !filepath.IsAbs(name) {
		local := filepath.Join(h.base, name)
		if _, err := os.Stat(local); err == nil {
			return m.NormalizePath(m.Path(local))
		}
	}

	return m.NormalizePath(m.Path(name))
}

// load compiles a file and binds it to the global environment.
func (h *luaHost) load(path m.Path) (*lua.LFunction, error) {
	src, err := h.opts.Source(path)
	if err != nil {
		return nil, m.NewError(m.KindIO, path, 0, err)
	}

	fn, err := h.state.Load(bytes.NewReader(blankShebang(src)), string(path))
	if err != nil {
		return nil, m.NewError(m.KindParse, path, 0, err)
	}

	fn.Env = h.state.G.Global

	return fn, nil
}

// track implements __coverage_track(path): it returns the line, entry and
// guard functions bound to path.
func (h *luaHost) track(L *lua.LState) int {
	path := m.Path(L.CheckString(1))

	L.Push(L.NewFunction(func(L *lua.LState) int {
		line := L.CheckInt(1)
		h.record(func(r Recorder) { r.Hit(path, line) })

		return 0
	}))
	L.Push(L.NewFunction(func(L *lua.LState) int {
		function := L.CheckInt(1)
		h.record(func(r Recorder) { r.Enter(path, function) })

		return 0
	}))
	L.Push(L.NewFunction(func(L *lua.LState) int {
		line := L.CheckInt(1)
		value := L.Get(2)
		h.record(func(r Recorder) { r.Guard(path, line, lua.LVAsBool(value)) })
		L.Push(value)

		return 1
	}))

	return 3
}

// record shields the script from recorder failures.
func (h *luaHost) record(call func(Recorder)) {
	if h.opts.Recorder == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Recorder panicked", "panic", r)
		}
	}()

	call(h.opts.Recorder)
}

func (h *luaHost) print(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)

	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}

	fmt.Fprintln(h.stdout, strings.Join(parts, "\t"))

	return 0
}

func (h *luaHost) dofile(L *lua.LState) int {
	fn, err := h.load(h.resolve(L.CheckString(1)))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}

	top := L.GetTop()
	L.Push(fn)
	L.Call(0, lua.MultRet)

	return L.GetTop() - top
}

func (h *luaHost) loadfile(L *lua.LState) int {
	fn, err := h.load(h.resolve(L.CheckString(1)))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))

		return 2
	}

	L.Push(fn)

	return 1
}

// require finds modules along package.path and loads them like dofile.
func (h *luaHost) require(L *lua.LState) int {
	name := L.CheckString(1)
	file := strings.ReplaceAll(name, ".", string(filepath.Separator))

	templates := "./?.lua;./?/init.lua"
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		if p, ok := L.GetField(pkg, "path").(lua.LString); ok && p != "" {
			templates = string(p)
		}
	}

	var tried []string

	for _, tpl := range strings.Split(templates, ";") {
		if tpl == "" {
			continue
		}

		candidate := strings.ReplaceAll(tpl, "?", file)
		path := h.resolve(candidate)

		if _, err := os.Stat(string(path)); err != nil {
			tried = append(tried, "\n\tno file '"+candidate+"'")
			continue
		}

		fn, err := h.load(path)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		L.Push(fn)

		return 1
	}

	L.Push(lua.LString(strings.Join(tried, "")))

	return 1
}
