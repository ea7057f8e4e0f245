package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	m "gooze.dev/pkg/luacover/internal/model"
	"gooze.dev/pkg/luacover/internal/syntax"
)

// Classifier assigns every source line a static classification. Results
// depend only on content and are cached by content hash.
type Classifier interface {
	// ClassifyLine returns the classification of a 1-based line of file.
	ClassifyLine(file *m.SourceFile, line int) (m.Classification, error)
	// ClassifyContent classifies all lines and reports lexical warnings
	// such as an unterminated block comment.
	ClassifyContent(content []byte) ([]m.Classification, []syntax.Warning)
}

type classification struct {
	classes  []m.Classification
	warnings []syntax.Warning
}

type classifier struct {
	mu    sync.Mutex
	cache map[string]classification
}

// NewClassifier creates a Classifier with an empty cache.
func NewClassifier() Classifier {
	return &classifier{cache: make(map[string]classification)}
}

func (c *classifier) ClassifyLine(file *m.SourceFile, line int) (m.Classification, error) {
	if file == nil {
		return m.NonExecutable, m.NewError(m.KindValidation, "", line, fmt.Errorf("missing file"))
	}

	key := file.Hash
	if key == "" {
		key = contentHash(file.Content)
	}

	classes, _ := c.classify(key, file.Content)
	if line < 1 || line > len(classes) {
		return m.NonExecutable, m.NewError(m.KindValidation, file.Path, line,
			fmt.Errorf("line out of range 1..%d", len(classes)))
	}

	return classes[line-1], nil
}

func (c *classifier) ClassifyContent(content []byte) ([]m.Classification, []syntax.Warning) {
	classes, warnings := c.classify(contentHash(content), content)

	return append([]m.Classification(nil), classes...), warnings
}

func (c *classifier) classify(key string, content []byte) ([]m.Classification, []syntax.Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[key]; ok {
		return cached.classes, cached.warnings
	}

	scan := syntax.Lex(content)
	classes := classifyScan(scan)
	c.cache[key] = classification{classes: classes, warnings: scan.Warnings}

	return classes, scan.Warnings
}

// classifyScan resolves a line to executable when any token starts on it,
// so code before an opening or after a closing comment marker wins over the
// comment itself. Lines inside a multi-line string hold no token and stay
// non-executable.
func classifyScan(scan *syntax.Scan) []m.Classification {
	classes := make([]m.Classification, len(scan.Lines))

	for i, info := range scan.Lines {
		switch {
		case info.Code:
			classes[i] = m.Executable
		case info.Comment:
			classes[i] = m.Comment
		default:
			classes[i] = m.NonExecutable
		}
	}

	return classes
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}
