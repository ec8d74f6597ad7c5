// Package knowledge aggregates a directory of plain-text documents into the
// composite text injected into the planning prompt.
package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern selects knowledge documents inside the directory. It has no
// path separator, so discovery is non-recursive.
const Pattern = "*.txt"

// NoKnowledge is returned by Load when no documents are found, so prompts
// always carry a non-empty knowledge section.
const NoKnowledge = "(no extra knowledge)"

// ErrInvalidEncoding is returned when a document is not valid UTF-8.
var ErrInvalidEncoding = errors.New("document is not valid UTF-8")

// Document is a single knowledge file.
type Document struct {
	Name string
	Text string
}

// Documents returns every non-hidden document in dir ordered by name. A
// missing directory yields no documents and no error.
func Documents(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat knowledge dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("knowledge path is not a directory: %s", dir)
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, Pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", Pattern, err)
	}
	sort.Strings(matches)

	docs := make([]Document, 0, len(matches))
	for _, name := range matches {
		// Hidden files include editor lock links such as ".#notes.txt".
		if strings.HasPrefix(name, ".") {
			continue
		}
		st, err := fs.Stat(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		if !st.Mode().IsRegular() {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s: %w", name, ErrInvalidEncoding)
		}
		docs = append(docs, Document{Name: name, Text: string(data)})
	}
	return docs, nil
}

// Load returns the composite knowledge text for dir: one "# <name>" block
// per document, separated by blank lines and trimmed. NoKnowledge is
// returned when the result would be empty.
func Load(dir string) (string, error) {
	docs, err := Documents(dir)
	if err != nil {
		return "", err
	}
	return Compose(docs), nil
}

// Compose renders documents into the composite knowledge text.
func Compose(docs []Document) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, "# "+d.Name+"\n"+d.Text)
	}
	text := strings.TrimSpace(strings.Join(blocks, "\n\n"))
	if text == "" {
		return NoKnowledge
	}
	return text
}
