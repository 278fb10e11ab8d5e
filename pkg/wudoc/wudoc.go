// Package wudoc reads and rewrites work-unit documents.
//
// A work-unit document is a markdown file named <id>.md with a YAML front
// matter block carrying the unit's id, status, lane, and title. The body
// belongs to whoever authored the document; the coordinator only ever
// rewrites the front matter (status and updated timestamp) during a commit
// and carries the body through byte-for-byte. Line endings are normalized
// to LF on parse.
package wudoc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/worklog/pkg/model"
)

var (
	// ErrNoFrontMatter indicates the document does not start with a YAML fence.
	ErrNoFrontMatter = errors.New("document has no front matter")
	// ErrMalformedFrontMatter indicates an unterminated or unparsable block.
	ErrMalformedFrontMatter = errors.New("malformed front matter")
)

var fence = []byte("---\n")

// Doc is one parsed work-unit document.
type Doc struct {
	ID      string
	Status  model.Status
	Lane    string
	Title   string
	Updated time.Time
	Body    []byte
}

// frontMatter is the wire form of the YAML block. Field order here is the
// order written back to disk.
type frontMatter struct {
	ID      string `yaml:"id"`
	Status  string `yaml:"status"`
	Lane    string `yaml:"lane,omitempty"`
	Title   string `yaml:"title,omitempty"`
	Updated string `yaml:"updated,omitempty"`
}

// PathFor returns the document path for a work unit under dir.
func PathFor(dir, id string) string { return filepath.Join(dir, id+".md") }

// Parse extracts the front matter and body from a document. The body is
// everything after the closing fence, untouched.
func Parse(content []byte) (*Doc, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, fence) {
		return nil, ErrNoFrontMatter
	}
	parts := bytes.SplitN(content[len(fence):], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return nil, ErrMalformedFrontMatter
	}
	var fm frontMatter
	if err := yaml.Unmarshal(parts[0], &fm); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedFrontMatter)
	}
	st := model.Status(fm.Status)
	if st != "" && !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedFrontMatter, fm.Status)
	}
	doc := &Doc{ID: fm.ID, Status: st, Lane: fm.Lane, Title: fm.Title, Body: parts[1]}
	if fm.Updated != "" {
		ts, err := time.Parse(time.RFC3339, fm.Updated)
		if err != nil {
			return nil, fmt.Errorf("%w: bad updated timestamp %q", ErrMalformedFrontMatter, fm.Updated)
		}
		doc.Updated = ts.UTC()
	}
	return doc, nil
}

// Render serializes the document: fenced front matter, then the body
// exactly as held.
func (d *Doc) Render() ([]byte, error) {
	fm := frontMatter{ID: d.ID, Status: string(d.Status), Lane: d.Lane, Title: d.Title}
	if !d.Updated.IsZero() {
		fm.Updated = d.Updated.UTC().Format(time.RFC3339)
	}
	meta, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(fence)
	buf.Write(bytes.TrimRight(meta, "\n"))
	buf.WriteString("\n")
	buf.Write(fence)
	buf.Write(d.Body)
	return buf.Bytes(), nil
}

// Load reads and parses the document at path.
func Load(path string) (*Doc, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// SetStatus rewrites the front matter of content with a new status and
// updated timestamp, leaving the body untouched. It is shaped for use as a
// transaction mutator.
func SetStatus(content []byte, st model.Status, updated time.Time) ([]byte, error) {
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	doc.Status = st
	doc.Updated = updated
	return doc.Render()
}

// NewContent builds a minimal document for a unit that has no authored
// file yet: front matter only, with a heading body naming the title.
func NewContent(id string, st model.Status, lane, title string, updated time.Time) ([]byte, error) {
	if title == "" {
		title = id
	}
	doc := &Doc{
		ID:      id,
		Status:  st,
		Lane:    lane,
		Title:   title,
		Updated: updated,
		Body:    []byte(fmt.Sprintf("\n# %s\n", title)),
	}
	return doc.Render()
}
