package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"gooze.dev/pkg/luacover/internal/adapter"
	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/internal/syntax"
)

// Names shared between instrumented sources and the runtime that executes them.
const (
	TrackFunction = "__coverage_track"
	lineCall      = "__cov_line"
	enterCall     = "__cov_enter"
	condCall      = "__cov_cond"

	// rewriteRules is mixed into cache keys so a change to the rule
	// tables invalidates earlier rewrites.
	rewriteRules = "rules/4"
)

// Instrumenter rewrites a file so it reports its own execution.
type Instrumenter interface {
	// Instrument returns the rewrite of file. When a safe rewrite cannot be
	// produced the returned rewrite carries the original source with
	// StrategyHook, along with an ErrInstrumentation error.
	Instrument(ctx context.Context, file *m.SourceFile) (*m.Rewrite, error)
}

type instrumenter struct {
	parser adapter.LuaParserAdapter
	cache  adapter.RewriteCache

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]*m.Rewrite
}

// NewInstrumenter creates an Instrumenter. The parser validates every
// rewrite; cache may be nil.
func NewInstrumenter(parser adapter.LuaParserAdapter, cache adapter.RewriteCache) Instrumenter {
	return &instrumenter{parser: parser, cache: cache, memo: make(map[string]*m.Rewrite)}
}

// RewriteKey identifies the rewrite of one file version.
func RewriteKey(path m.Path, hash string) string {
	sum := sha256.Sum256([]byte(string(path) + "\x00" + hash + "\x00" + rewriteRules))
	return hex.EncodeToString(sum[:])
}

func (in *instrumenter) Instrument(ctx context.Context, file *m.SourceFile) (*m.Rewrite, error) {
	if file == nil {
		return nil, m.NewError(m.KindValidation, "", 0, errors.New("no file to instrument"))
	}

	if !file.Tracked {
		return nil, m.NewError(m.KindValidation, file.Path, 0, errors.New("file was not analyzed"))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := RewriteKey(file.Path, file.Hash)

	v, err, _ := in.group.Do(key, func() (any, error) {
		return in.lookup(key, file), nil
	})
	if err != nil {
		return nil, err
	}

	rw, _ := v.(*m.Rewrite)
	if !rw.Instrumented() {
		return rw, m.NewError(m.KindInstrumentation, file.Path, 0, errors.New(rw.Reason))
	}

	return rw, nil
}

func (in *instrumenter) lookup(key string, file *m.SourceFile) *m.Rewrite {
	in.mu.Lock()
	rw, ok := in.memo[key]
	in.mu.Unlock()

	if ok {
		return rw
	}

	if in.cache != nil {
		cached, found, err := in.cache.Get(key)
		if err != nil {
			slog.Warn("Rewrite cache read failed", "path", file.Path, "error", err)
		} else if found && cached.Hash == file.Hash {
			rw = cached
		}
	}

	if rw == nil {
		rw = in.rewrite(file)

		if in.cache != nil {
			if err := in.cache.Put(key, rw); err != nil {
				slog.Warn("Rewrite cache write failed", "path", file.Path, "error", err)
			}
		}
	}

	in.mu.Lock()
	in.memo[key] = rw
	in.mu.Unlock()

	return rw
}

// rewrite builds the instrumented source, falling back to the original
// content when the result would not be equivalent.
func (in *instrumenter) rewrite(file *m.SourceFile) *m.Rewrite {
	fallback := func(reason string) *m.Rewrite {
		slog.Warn("Instrumentation fell back to hooks", "path", file.Path, "reason", reason)

		return &m.Rewrite{Path: file.Path, Hash: file.Hash, Source: file.Content, Strategy: m.StrategyHook, Reason: reason}
	}

	out, inserted, err := Rewrite(file)
	if err != nil {
		return fallback(err.Error())
	}

	before := syntax.Balance(syntax.Lex(file.Content).Tokens)
	after := syntax.Balance(syntax.Lex(out).Tokens)

	if before != after {
		return fallback(fmt.Sprintf("block balance changed from %d to %d", before, after))
	}

	if in.parser != nil {
		if _, err := in.parser.Parse(file.Path, out); err != nil {
			return fallback(fmt.Sprintf("instrumented source does not parse: %v", err))
		}
	}

	slog.Debug("Instrumented file", "path", file.Path, "calls", inserted)

	return &m.Rewrite{Path: file.Path, Hash: file.Hash, Source: out, Strategy: m.StrategyInstrument, Inserted: inserted}
}

// Rewrite inserts the tracking calls into file's content and returns the
// result with the number of calls added. Original lines keep their bytes;
// only whole lines are added and text is inserted between tokens.
func Rewrite(file *m.SourceFile) ([]byte, int, error) {
	content := file.Content

	index, err := syntax.NewLineIndex(content)
	if err != nil {
		return nil, 0, err
	}

	scan := syntax.Lex(content)
	tokens := scan.Tokens
	edit := syntax.NewEdit(content, index)

	insertPreamble(edit, content, index, file.Path)

	calls := 0

	for i, f := range collectFacts(file, scan) {
		line := f.Line

		how, _ := decide(lineRules, &f)
		switch how {
		case stratPrefix:
			edit.Insert(tokens[f.From].Offset, fmt.Sprintf("%s(%d); ", lineCall, line))
		case stratBefore:
			edit.Prepend(line, fmt.Sprintf("%s%s(%d);", syntax.Indent(content, index, line), lineCall, line))
		case stratAfterKeyword:
			kw := f.From
			if f.Shape == shapeElseif {
				kw = f.ArmThen
			}

			edit.Insert(tokens[kw].End, fmt.Sprintf(" %s(%d);", lineCall, line))
		case stratGuard:
			edit.Insert(tokens[f.Guard.first].Offset, fmt.Sprintf("%s(%d, (", condCall, line))
			edit.Insert(tokens[f.Guard.last].End, "))")
		case stratNextLine:
			edit.Append(line, fmt.Sprintf("%s%s(%d);", syntax.Indent(content, index, line), lineCall, line))
		default:
		}

		if how != stratSkip {
			calls++
		}

		f.eachEnter(func(site *enterSite, enter strategy) {
			switch {
			case enter == stratInline:
				edit.Insert(tokens[site.params].End, fmt.Sprintf(" %s(%d);", enterCall, site.function))
				calls++
			case enter == stratNextLine && f.enterBelow():
				indent := syntax.Indent(content, index, line)
				if i+1 < len(scan.Lines) {
					indent = syntax.Indent(content, index, line+1)
				}

				edit.Append(line, fmt.Sprintf("%s%s(%d);", indent, enterCall, site.function))
				calls++
			}
		})
	}

	out, err := edit.Apply(content)
	if err != nil {
		return nil, 0, err
	}

	return out, calls, nil
}

// insertPreamble binds the tracking functions as locals on the first code
// line so line numbers below stay put. A shebang line is left first.
func insertPreamble(edit *syntax.Edit, content []byte, index *syntax.LineIndex, path m.Path) {
	text := Preamble(path)

	if len(content) == 0 || content[0] != '#' {
		edit.Head(0, text+" ")
		return
	}

	if index.LineCount() < 2 {
		edit.Head(len(content), "\n"+text)
		return
	}

	edit.Head(index.LineStart(2), text+" ")
}

// Preamble returns the statement binding the tracking functions for path.
func Preamble(path m.Path) string {
	return fmt.Sprintf("local %s, %s, %s = %s(%s);", lineCall, enterCall, condCall, TrackFunction, longString(string(path)))
}

// longString quotes s as a Lua long string with a level that cannot
// collide with its content.
func longString(s string) string {
	level := 0
	for strings.Contains(s, "]"+strings.Repeat("=", level)+"]") {
		level++
	}

	eq := strings.Repeat("=", level)

	return "[" + eq + "[" + s + "]" + eq + "]"
}
