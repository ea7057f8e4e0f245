package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gooze.dev/pkg/luacover/internal/adapter"
	m "gooze.dev/pkg/luacover/internal/model"
)

// Store owns the SourceFiles of one coverage run. Records are created by
// static analysis when a file is initialized and only their execution
// fields change afterwards.
//
//nolint:interfacebloat // the data API is one surface
type Store interface {
	// InitializeFile reads and analyzes path. A file whose content did not
	// change since the last call is returned as is.
	InitializeFile(path m.Path) (*m.SourceFile, error)
	// InitializeContent analyzes content as the source of path.
	InitializeContent(path m.Path, content []byte) (*m.SourceFile, error)
	// GetFileData returns a copy of the file's current state.
	GetFileData(path m.Path) (*m.SourceFile, bool)
	// Layout returns the live file for reading its static layout:
	// classifications and the code map. Execution fields must be read
	// through GetFileData.
	Layout(path m.Path) (*m.SourceFile, bool)

	SetLineExecuted(path m.Path, line int) error
	SetLineCovered(path m.Path, line int) error
	TrackFunctionExecution(path m.Path, id int) error
	SetFunctionCovered(path m.Path, id int) error
	TrackBlockExecution(path m.Path, id int) error
	TrackConditionExecution(path m.Path, id int, outcome bool) error

	// SetStrategy records how the file's execution is observed.
	SetStrategy(path m.Path, strategy m.Strategy) error
	ResetFile(path m.Path) error
	FullReset()

	Files() []m.Path
	// AddIssue records why a file is untracked, uninstrumented or unreadable.
	AddIssue(issue m.FileIssue)
	Issues() []m.FileIssue
}

type store struct {
	fs         adapter.SourceFSAdapter
	parser     adapter.LuaParserAdapter
	classifier Classifier
	analyzer   Analyzer

	mu     sync.RWMutex
	files  map[m.Path]*m.SourceFile
	issues []m.FileIssue
}

// NewStore creates an empty Store reading sources through fs.
func NewStore(fs adapter.SourceFSAdapter, parser adapter.LuaParserAdapter, classifier Classifier, analyzer Analyzer) Store {
	return &store{
		fs:         fs,
		parser:     parser,
		classifier: classifier,
		analyzer:   analyzer,
		files:      make(map[m.Path]*m.SourceFile),
	}
}

func (s *store) InitializeFile(path m.Path) (*m.SourceFile, error) {
	key := m.NormalizePath(path)
	if key == "" {
		return nil, m.NewError(m.KindValidation, path, 0, errors.New("empty path"))
	}

	if s.fs == nil {
		return nil, m.NewError(m.KindIO, key, 0, errors.New("no file accessor"))
	}

	content, err := s.fs.ReadFile(key)
	if err != nil {
		slog.Warn("excluding unreadable file from coverage", "path", key, "error", err)
		s.AddIssue(m.FileIssue{Path: key, Kind: m.KindIO, Reason: err.Error()})

		return nil, m.NewError(m.KindIO, key, 0, err)
	}

	return s.InitializeContent(key, content)
}

func (s *store) InitializeContent(path m.Path, content []byte) (*m.SourceFile, error) {
	key := m.NormalizePath(path)
	if key == "" {
		return nil, m.NewError(m.KindValidation, path, 0, errors.New("empty path"))
	}

	hash := contentHash(content)

	s.mu.RLock()
	existing, ok := s.files[key]
	s.mu.RUnlock()

	if ok && existing.Hash == hash {
		return existing, nil
	}

	file := s.analyze(key, hash, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.files[key]; ok && current.Hash == hash {
		return current, nil
	}

	if ok {
		file.Strategy = existing.Strategy
	}

	s.files[key] = file

	return file, nil
}

// analyze builds a file from content. Failures degrade the file to
// untracked: its lines still count but it has no code map.
func (s *store) analyze(path m.Path, hash string, content []byte) *m.SourceFile {
	classes, warnings := s.classifier.ClassifyContent(content)
	for _, w := range warnings {
		slog.Warn("lexical problem", "path", path, "line", w.Line, "message", w.Message)
	}

	file := &m.SourceFile{
		Path:      path,
		Hash:      hash,
		Content:   content,
		LineCount: len(classes),
		Lines:     make([]m.LineRecord, len(classes)),
		CodeMap: m.CodeMap{
			StatementLines:  map[int]bool{},
			Guards:          map[int]m.Guard{},
			Entries:         map[int][]int{},
			Continuations:   map[int][]int{},
			FunctionOffsets: map[int]int{},
		},
		Strategy: m.StrategyInstrument,
	}

	for i, class := range classes {
		file.Lines[i] = m.LineRecord{Number: i + 1, Class: class}
	}

	if s.parser == nil || s.analyzer == nil {
		return file
	}

	tree, err := s.parser.Parse(path, content)
	if err != nil {
		slog.Warn("file left untracked", "path", path, "error", err)
		s.AddIssue(m.FileIssue{Path: path, Kind: m.KindParse, Reason: err.Error()})

		return file
	}

	cm, err := s.analyzer.BuildCodeMap(tree, content)
	if err != nil {
		slog.Warn("file left untracked", "path", path, "error", err)
		s.AddIssue(m.FileIssue{Path: path, Kind: m.KindParse, Reason: err.Error()})

		return file
	}

	file.CodeMap = *cm
	file.Tracked = true

	return file
}

func (s *store) GetFileData(path m.Path) (*m.SourceFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[m.NormalizePath(path)]
	if !ok {
		return nil, false
	}

	return file.Clone(), true
}

func (s *store) Layout(path m.Path) (*m.SourceFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[m.NormalizePath(path)]

	return file, ok
}

// file returns the live file; callers hold the write lock.
func (s *store) file(path m.Path) (*m.SourceFile, error) {
	key := m.NormalizePath(path)
	if key == "" {
		return nil, m.NewError(m.KindValidation, path, 0, errors.New("empty path"))
	}

	file, ok := s.files[key]
	if !ok {
		return nil, m.NewError(m.KindValidation, key, 0, errors.New("file not initialized"))
	}

	return file, nil
}

func (s *store) line(path m.Path, number int) (*m.LineRecord, error) {
	file, err := s.file(path)
	if err != nil {
		return nil, err
	}

	rec, ok := file.Line(number)
	if !ok {
		return nil, m.NewError(m.KindValidation, file.Path, number, fmt.Errorf("line out of range 1..%d", file.LineCount))
	}

	return rec, nil
}

func (s *store) SetLineExecuted(path m.Path, line int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.line(path, line)
	if err != nil {
		return err
	}

	if rec.Class != m.Executable {
		slog.Debug("ignoring execution of non-executable line", "path", path, "line", line, "class", rec.Class)
		return nil
	}

	rec.Executed = true
	rec.Count++

	return nil
}

func (s *store) SetLineCovered(path m.Path, line int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.line(path, line)
	if err != nil {
		return err
	}

	if rec.Class != m.Executable {
		slog.Warn("cannot mark non-executable line covered", "path", path, "line", line, "class", rec.Class)
		return nil
	}

	rec.Executed = true
	rec.Covered = true

	if rec.Count == 0 {
		rec.Count = 1
	}

	return nil
}

func (s *store) function(path m.Path, id int) (*m.FunctionRecord, error) {
	file, err := s.file(path)
	if err != nil {
		return nil, err
	}

	fn, ok := file.Function(id)
	if !ok {
		return nil, m.NewError(m.KindValidation, file.Path, 0, fmt.Errorf("unknown function %d", id))
	}

	return fn, nil
}

func (s *store) TrackFunctionExecution(path m.Path, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(path, id)
	if err != nil {
		return err
	}

	fn.Executed = true
	fn.Count++

	return nil
}

func (s *store) SetFunctionCovered(path m.Path, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, err := s.function(path, id)
	if err != nil {
		return err
	}

	fn.Executed = true
	fn.Covered = true

	if fn.Count == 0 {
		fn.Count = 1
	}

	return nil
}

func (s *store) TrackBlockExecution(path m.Path, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.file(path)
	if err != nil {
		return err
	}

	block, ok := file.Block(id)
	if !ok {
		return m.NewError(m.KindValidation, file.Path, 0, fmt.Errorf("unknown block %d", id))
	}

	block.Executed = true
	block.Count++

	return nil
}

// TrackConditionExecution counts an observed outcome and pushes the
// implied outcomes down the component tree. Counters reached only through
// inference carry the inferred flag until an observation clears it.
func (s *store) TrackConditionExecution(path m.Path, id int, outcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.file(path)
	if err != nil {
		return err
	}

	cond, ok := file.Condition(id)
	if !ok {
		return m.NewError(m.KindValidation, file.Path, 0, fmt.Errorf("unknown condition %d", id))
	}

	cond.Executed = true

	if outcome {
		cond.TrueCount++
		cond.TrueInferred = false
	} else {
		cond.FalseCount++
		cond.FalseInferred = false
	}

	type step struct {
		id      int
		outcome bool
	}

	pending := []step{{id: id, outcome: outcome}}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		parent, _ := file.Condition(cur.id)

		value, ok := implied(parent, cur.outcome)
		if !ok {
			continue
		}

		for _, cid := range parent.Components {
			comp, found := file.Condition(cid)
			if !found {
				continue
			}

			comp.Executed = true

			if value {
				if comp.TrueCount == 0 {
					comp.TrueInferred = true
				}

				comp.TrueCount++
			} else {
				if comp.FalseCount == 0 {
					comp.FalseInferred = true
				}

				comp.FalseCount++
			}

			pending = append(pending, step{id: cid, outcome: value})
		}
	}

	return nil
}

func (s *store) SetStrategy(path m.Path, strategy m.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.file(path)
	if err != nil {
		return err
	}

	file.Strategy = strategy

	return nil
}

func (s *store) ResetFile(path m.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.file(path)
	if err != nil {
		return err
	}

	for i := range file.Lines {
		rec := &file.Lines[i]
		rec.Executed, rec.Covered, rec.Count = false, false, 0
	}

	for i := range file.Functions {
		fn := &file.Functions[i]
		fn.Executed, fn.Covered, fn.Count = false, false, 0
	}

	for i := range file.Blocks {
		b := &file.Blocks[i]
		b.Executed, b.Count = false, 0
	}

	for i := range file.Conditions {
		c := &file.Conditions[i]
		c.Executed, c.TrueCount, c.FalseCount = false, 0, 0
		c.TrueInferred, c.FalseInferred = false, false
	}

	return nil
}

func (s *store) FullReset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = make(map[m.Path]*m.SourceFile)
	s.issues = nil
}

func (s *store) Files() []m.Path {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]m.Path, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	return paths
}

func (s *store) AddIssue(issue m.FileIssue) {
	issue.Path = m.NormalizePath(issue.Path)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.issues {
		if existing.Path == issue.Path && existing.Kind == issue.Kind {
			return
		}
	}

	s.issues = append(s.issues, issue)
}

func (s *store) Issues() []m.FileIssue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]m.FileIssue(nil), s.issues...)
}
