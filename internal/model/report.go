package model

// RawDataVersion is bumped when the persisted layout changes.
const RawDataVersion = 1

// RawData is the serializable content of a coverage store, handed to the
// reporting collaborator and used to merge worker results.
type RawData struct {
	Version int        `yaml:"version"`
	Runs    []string   `yaml:"runs"`
	Files   []FileData `yaml:"files"`
	// Issues lists files that were untracked, uninstrumented or unreadable.
	Issues []FileIssue `yaml:"issues,omitempty"`
}

// FileData is the serializable content of one SourceFile.
type FileData struct {
	Path       Path              `yaml:"path"`
	Hash       string            `yaml:"hash"`
	Tracked    bool              `yaml:"tracked"`
	Strategy   Strategy          `yaml:"strategy,omitempty"`
	Lines      []LineRecord      `yaml:"lines"`
	Functions  []FunctionRecord  `yaml:"functions,omitempty"`
	Blocks     []BlockRecord     `yaml:"blocks,omitempty"`
	Conditions []ConditionRecord `yaml:"conditions,omitempty"`
}
