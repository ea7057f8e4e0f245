package domain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"gooze.dev/pkg/luacover/internal/adapter"
	"gooze.dev/pkg/luacover/internal/controller"
	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/pkg"
)

// DefaultInclude selects Lua sources when no include pattern is given.
const DefaultInclude = `\.lua$`

// ScanArgs selects the files a command works on. A path ending in `/...`
// is scanned recursively; Include and Exclude are regular expressions
// matched against file paths.
type ScanArgs struct {
	Paths   []m.Path
	Include []string
	Exclude []string
}

// EngineArgs configures the engine built for a command.
type EngineArgs struct {
	Strategy m.Strategy
	Hook     []string
	Threads  int
	UseCache bool
	CacheDir m.Path
}

// AnalyzeArgs contains the arguments for static analysis.
type AnalyzeArgs struct {
	ScanArgs
}

// InstrumentArgs contains the arguments for rewriting one file.
type InstrumentArgs struct {
	EngineArgs
	File      m.Path
	Diff      bool
	OutputDir m.Path
}

// RunArgs contains the arguments for running a script under coverage.
type RunArgs struct {
	ScanArgs
	EngineArgs
	Script          m.Path
	ScriptArgs      []string
	Reports         m.Path
	ShardIndex      uint
	TotalShardCount uint
	Stdout          io.Writer
}

// ReplayArgs contains the arguments for feeding a recorded trace.
type ReplayArgs struct {
	ScanArgs
	EngineArgs
	Trace           m.Path
	Reports         m.Path
	ShardIndex      uint
	TotalShardCount uint
	Buffer          int
}

// MergeArgs contains the arguments for merging shard results.
type MergeArgs struct {
	Reports m.Path
}

// ViewArgs contains the arguments for viewing saved results.
type ViewArgs struct {
	Reports m.Path
}

// Workflow implements the CLI commands on top of Engine.
type Workflow interface {
	Analyze(ctx context.Context, args AnalyzeArgs) error
	Instrument(ctx context.Context, args InstrumentArgs) error
	Run(ctx context.Context, args RunArgs) error
	Replay(ctx context.Context, args ReplayArgs) error
	Merge(ctx context.Context, args MergeArgs) error
	View(ctx context.Context, args ViewArgs) error
}

type workflow struct {
	fs      adapter.SourceFSAdapter
	parser  adapter.LuaParserAdapter
	runtime adapter.LuaRuntimeAdapter
	reports adapter.ReportStore
	events  adapter.EventReader
	ui      controller.UI
}

// NewWorkflow creates a Workflow with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	parser adapter.LuaParserAdapter,
	runtime adapter.LuaRuntimeAdapter,
	reportStore adapter.ReportStore,
	events adapter.EventReader,
	ui controller.UI,
) Workflow {
	return &workflow{
		fs:      fsAdapter,
		parser:  parser,
		runtime: runtime,
		reports: reportStore,
		events:  events,
		ui:      ui,
	}
}

func (w *workflow) Analyze(ctx context.Context, args AnalyzeArgs) error {
	files, err := w.collect(args.ScanArgs)
	if err != nil {
		return err
	}

	engine, err := w.newEngine(EngineArgs{})
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := engine.Store().InitializeFile(path); err != nil {
			slog.Warn("Failed to analyze file", "path", path, "error", err)
		}
	}

	return w.show(ctx, engine.Snapshot(""), engine.Issues(), controller.WithAnalyzeMode())
}

func (w *workflow) Instrument(ctx context.Context, args InstrumentArgs) error {
	if args.File == "" {
		return m.NewError(m.KindValidation, "", 0, errors.New("no file to instrument"))
	}

	args.Strategy = m.StrategyInstrument

	engine, err := w.newEngine(args.EngineArgs)
	if err != nil {
		return err
	}

	path := m.NormalizePath(args.File)
	if err := engine.Prepare(ctx, []m.Path{path}); err != nil {
		return err
	}

	rw, ok := engine.Instrumented(path)
	if !ok {
		kind, reason := issueOf(engine.Issues(), path)
		return m.NewError(kind, path, 0, errors.New(reason))
	}

	if args.OutputDir != "" {
		target := w.outputPath(args.OutputDir, path)
		if err := w.fs.WriteFile(target, rw.Source, 0o644); err != nil {
			return m.NewError(m.KindIO, target, 0, err)
		}

		slog.Info("Wrote instrumented file", "path", target, "calls", rw.Inserted)
	}

	if args.Diff {
		file, _ := engine.Store().Layout(path)

		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(file.Content)),
			B:        difflib.SplitLines(string(rw.Source)),
			FromFile: string(path),
			ToFile:   string(path) + " (instrumented)",
			Context:  3,
		})
		if err != nil {
			return fmt.Errorf("diff %s: %w", path, err)
		}

		w.ui.DisplayText(ctx, text)

		return nil
	}

	if args.OutputDir == "" {
		w.ui.DisplayText(ctx, string(rw.Source))
	}

	return nil
}

// outputPath places path under dir, relative to its project root when one
// is found.
func (w *workflow) outputPath(dir, path m.Path) m.Path {
	rel := mirrorPath(path)

	if root, err := w.fs.FindProjectRoot(path); err == nil {
		if r, err := w.fs.RelPath(root, path); err == nil && !strings.HasPrefix(string(r), "..") {
			rel = mirrorPath(r)
		}
	}

	return w.fs.JoinPath(string(dir), rel)
}

// mirrorPath makes path relative so it can be recreated under another
// directory.
func mirrorPath(path m.Path) string {
	p := string(m.NormalizePath(path))
	for {
		switch {
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		case strings.HasPrefix(p, "../"):
			p = p[3:]
		default:
			return p
		}
	}
}

// issueOf returns the recorded failure of path.
func issueOf(issues []m.FileIssue, path m.Path) (m.ErrorKind, string) {
	for _, issue := range issues {
		if issue.Path == path {
			return issue.Kind, issue.Reason
		}
	}

	return m.KindInstrumentation, "file was not instrumented"
}

func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	if args.Script == "" {
		return m.NewError(m.KindValidation, "", 0, errors.New("no script to run"))
	}

	files, err := w.collect(args.ScanArgs)
	if err != nil {
		return err
	}

	engine, err := w.newEngine(args.EngineArgs)
	if err != nil {
		return err
	}

	if err := engine.Prepare(ctx, files); err != nil {
		return err
	}

	slog.Info("Running script", "script", args.Script, "files", len(files), "run", engine.RunID())

	if err := engine.Start(); err != nil {
		return err
	}

	runErr := w.runtime.Run(ctx, args.Script, adapter.LuaRunOptions{
		Recorder: engine,
		Source:   w.chunkSource(engine),
		Stdout:   args.Stdout,
		Args:     args.ScriptArgs,
	})

	if err := engine.Stop(); err != nil {
		return err
	}

	if runErr != nil {
		slog.Error("Script failed", "script", args.Script, "error", runErr)
	}

	if err := w.save(engine.RawData(), args.Reports, args.ShardIndex, args.TotalShardCount); err != nil {
		return err
	}

	if err := w.show(ctx, engine.Snapshot(""), engine.Issues(), controller.WithReportMode()); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", args.Script, runErr)
	}

	return nil
}

// chunkSource serves rewrites for instrumented files and disk content for
// everything else.
func (w *workflow) chunkSource(engine Engine) adapter.ChunkSource {
	return func(path m.Path) ([]byte, error) {
		if rw, ok := engine.Instrumented(path); ok {
			return rw.Source, nil
		}

		return w.fs.ReadFile(path)
	}
}

func (w *workflow) Replay(ctx context.Context, args ReplayArgs) error {
	if args.Trace == "" {
		return m.NewError(m.KindValidation, "", 0, errors.New("no trace to replay"))
	}

	trace, err := w.fs.ReadFile(args.Trace)
	if err != nil {
		return m.NewError(m.KindIO, args.Trace, 0, err)
	}

	files, err := w.collect(args.ScanArgs)
	if err != nil {
		return err
	}

	args.Strategy = m.StrategyHook

	engine, err := w.newEngine(args.EngineArgs)
	if err != nil {
		return err
	}

	if err := engine.Prepare(ctx, files); err != nil {
		return err
	}

	if err := engine.Start(); err != nil {
		return err
	}

	buffer := args.Buffer
	if buffer <= 0 {
		buffer = 1
	}

	events := make(chan m.Event, buffer)
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(events)

		n, err := w.events.ReadEvents(gctx, bytes.NewReader(trace), events)
		slog.Debug("Read trace", "path", args.Trace, "events", n)

		return err
	})
	group.Go(func() error {
		return engine.Tracker().Consume(gctx, events)
	})

	replayErr := group.Wait()

	if err := engine.Stop(); err != nil {
		return err
	}

	if replayErr != nil {
		return fmt.Errorf("replay %s: %w", args.Trace, replayErr)
	}

	stats := engine.Tracker().Stats()
	slog.Info("Replayed trace", "path", args.Trace, "events", stats.Calls, "average", stats.Average, "max", stats.Max)

	if err := w.save(engine.RawData(), args.Reports, args.ShardIndex, args.TotalShardCount); err != nil {
		return err
	}

	return w.show(ctx, engine.Snapshot(""), engine.Issues(), controller.WithReportMode())
}

func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	shards, err := w.reports.ListShards(args.Reports)
	if err != nil {
		return err
	}

	if len(shards) == 0 {
		return m.NewError(m.KindValidation, args.Reports, 0, errors.New("no shard files to merge"))
	}

	spill, err := pkg.NewFileSpill[m.RawData]()
	if err != nil {
		return fmt.Errorf("create spill: %w", err)
	}

	defer func() {
		if err := spill.Close(); err != nil {
			slog.Warn("Failed to close spill", "path", spill.Path(), "error", err)
		}
	}()

	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := w.reports.LoadRawData(shard)
		if err != nil {
			return fmt.Errorf("load shard %s: %w", shard, err)
		}

		if err := spill.Append(raw); err != nil {
			return err
		}
	}

	var merged m.RawData

	err = spill.Range(func(i uint64, raw m.RawData) error {
		if i == 0 {
			merged = raw
			return nil
		}

		merged = Merge(merged, raw)

		return nil
	})
	if err != nil {
		return fmt.Errorf("merge shards: %w", err)
	}

	slog.Info("Merged shards", "count", len(shards), "runs", len(merged.Runs))

	if err := w.save(merged, args.Reports, 0, 0); err != nil {
		return err
	}

	return w.show(ctx, SnapshotRaw(merged), merged.Issues, controller.WithReportMode())
}

func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	raw, err := w.reports.LoadRawData(w.fs.JoinPath(string(args.Reports), adapter.RawDataFile))
	if err != nil {
		return err
	}

	issues := append(raw.Issues, w.staleSources(raw)...)

	return w.show(ctx, SnapshotRaw(raw), issues, controller.WithReportMode())
}

// staleSources reports files whose content no longer matches the data.
func (w *workflow) staleSources(raw m.RawData) []m.FileIssue {
	var issues []m.FileIssue

	for _, file := range raw.Files {
		hash, err := w.fs.HashFile(file.Path)
		if err != nil {
			slog.Debug("Source not readable", "path", file.Path, "error", err)
			continue
		}

		if hash != file.Hash {
			slog.Warn("Source changed since coverage was recorded", "path", file.Path)
			issues = append(issues, m.FileIssue{Path: file.Path, Kind: m.KindValidation, Reason: "source changed since coverage was recorded"})
		}
	}

	return issues
}

func (w *workflow) show(ctx context.Context, snap m.CoverageSnapshot, issues []m.FileIssue, mode controller.StartOption) error {
	if err := w.ui.Start(ctx, mode); err != nil {
		slog.Error("Failed to start UI", "error", err)
		return err
	}

	defer w.ui.Close(ctx)

	if err := w.ui.DisplaySnapshot(ctx, snap); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	w.ui.DisplayIssues(ctx, issues)
	w.ui.Wait(ctx)

	return nil
}

func (w *workflow) save(raw m.RawData, reports m.Path, shardIndex, totalShards uint) error {
	name := adapter.RawDataFile
	if totalShards > 1 {
		name = adapter.ShardFile(shardIndex)
	}

	target := w.fs.JoinPath(string(reports), name)
	if err := w.reports.SaveRawData(target, raw); err != nil {
		return fmt.Errorf("save %s: %w", target, err)
	}

	slog.Info("Saved coverage data", "path", target, "files", len(raw.Files))

	return nil
}

func (w *workflow) newEngine(args EngineArgs) (Engine, error) {
	hooks, err := compilePatterns(args.Hook)
	if err != nil {
		return nil, err
	}

	var cache adapter.RewriteCache
	if args.UseCache && args.CacheDir != "" {
		cache = adapter.NewDiskRewriteCache(string(args.CacheDir))
	}

	return NewEngine(EngineDeps{
		FS:           w.fs,
		Parser:       w.parser,
		Cache:        cache,
		Strategy:     args.Strategy,
		HookPatterns: hooks,
		Parallel:     args.Threads,
	}), nil
}

// collect expands the scan paths into the sorted list of source files.
func (w *workflow) collect(args ScanArgs) ([]m.Path, error) {
	includes := args.Include
	if len(includes) == 0 {
		includes = []string{DefaultInclude}
	}

	include, err := compilePatterns(includes)
	if err != nil {
		return nil, err
	}

	exclude, err := compilePatterns(args.Exclude)
	if err != nil {
		return nil, err
	}

	paths := args.Paths
	if len(paths) == 0 {
		paths = []m.Path{"./..."}
	}

	seen := make(map[m.Path]bool)

	add := func(path string, explicit bool) {
		key := m.NormalizePath(m.Path(path))
		if seen[key] || matchesAny(exclude, string(key)) {
			return
		}

		if !explicit && !matchesAny(include, string(key)) {
			return
		}

		seen[key] = true
	}

	for _, p := range paths {
		root, recursive := splitPattern(string(p))

		info, err := w.fs.FileInfo(m.Path(root))
		if err != nil {
			return nil, m.NewError(m.KindIO, m.Path(root), 0, err)
		}

		if !info.IsDir() {
			add(root, true)
			continue
		}

		err = w.fs.Walk(m.Path(root), recursive, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if !info.IsDir() {
				add(path, false)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	files := make([]m.Path, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}

	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })

	return files, nil
}

// splitPattern turns `dir/...` into (dir, true).
func splitPattern(p string) (string, bool) {
	if p == "..." {
		return ".", true
	}

	if root, ok := strings.CutSuffix(p, "/..."); ok {
		if root == "" {
			root = "/"
		}

		return root, true
	}

	return p, false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, m.NewError(m.KindValidation, "", 0, fmt.Errorf("pattern %q: %w", p, err))
		}

		out = append(out, re)
	}

	return out, nil
}

func matchesAny(patterns []*regexp.Regexp, path string) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}
