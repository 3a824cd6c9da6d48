package journal

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/byxorna/asynctable/pkg/db"
	"github.com/byxorna/asynctable/pkg/text"
	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

var (
	// DailyIDFormat names the one entry each day gets, NoteIDFormat any
	// further entries added that day
	DailyIDFormat = "2006-01-02"
	NoteIDFormat  = "2006-01-02-150405"
	StorageGlob   = "*.md"

	ErrUnableToFindMetadataSection = fmt.Errorf("unable to find metadata yaml at header of entry")

	_ db.Doc = (*Entry)(nil)
)

// Entry is one journal row. It is stored as markdown with a yaml front
// matter section.
type Entry struct {
	ID         string     `yaml:"id" validate:"required"`
	Author     string     `yaml:"author,omitempty"`
	Name       string     `yaml:"title" validate:"required"`
	CreatedAt  time.Time  `yaml:"created" validate:"required"`
	ModifiedAt *time.Time `yaml:"modified,omitempty"`
	Tags       []string   `yaml:"tags,omitempty" validate:"unique"`

	Body string `yaml:"-"`

	// path is empty for daily entries that were never written
	path string
	icon string
}

func (e *Entry) Identifier() string   { return e.ID }
func (e *Entry) Created() time.Time   { return e.CreatedAt }
func (e *Entry) Modified() *time.Time { return e.ModifiedAt }
func (e *Entry) Title() string        { return e.Name }
func (e *Entry) Icon() string         { return e.icon }
func (e *Entry) SelectorTags() []string {
	return e.Tags
}
func (e *Entry) AsMarkdown() string { return e.Body }

// Stored reports whether the entry has a file behind it.
func (e *Entry) Stored() bool { return e.path != "" }

func (e *Entry) Summary() string {
	return e.summary(time.Now())
}

func (e *Entry) summary(now time.Time) string {
	if e.ModifiedAt != nil {
		return "edited " + text.RelativeTime(*e.ModifiedAt, now)
	}
	if !e.Stored() {
		return ""
	}
	return text.RelativeTime(e.CreatedAt, now)
}

func (e *Entry) MatchesFilter(needle string) bool {
	hay := e.Name + " " + strings.Join(e.Tags, " ")
	return len(text.Search(needle, []string{hay})) > 0
}

func (e *Entry) Validate() error {
	validate := validator.New()
	return validate.Struct(*e)
}

func (e *Entry) filename() string {
	return e.ID + ".md"
}

// LoadFromReader parses an entry: a yaml section between two "---" lines,
// then the markdown body.
func LoadFromReader(r io.Reader) (*Entry, error) {
	var e Entry

	bytes, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read: %w", err)
	}

	nChunks := 3
	chunks := strings.SplitN(string(bytes), "---", nChunks)
	if len(chunks) != nChunks || strings.TrimSpace(chunks[0]) != "" {
		return nil, fmt.Errorf("unable to parse metadata section: %w", ErrUnableToFindMetadataSection)
	}

	if err := yaml.Unmarshal([]byte(chunks[1]), &e); err != nil {
		return nil, fmt.Errorf("unable to deserialize metadata: %w", err)
	}
	e.Body = strings.TrimLeft(chunks[2], "\n")

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &e, nil
}

func LoadFromFile(fileName string) (*Entry, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", fileName, err)
	}
	defer f.Close()

	e, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", fileName, err)
	}
	e.path = fileName
	return e, nil
}

// Marshal renders the entry the way LoadFromReader reads it.
func (e *Entry) Marshal() ([]byte, error) {
	metadata, err := yaml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal metadata for %s: %w", e.ID, err)
	}
	return []byte(fmt.Sprintf("---\n%s\n---\n%s", strings.TrimSpace(string(metadata)), e.Body)), nil
}

// write stores the entry at path and returns the file's modification time.
func (e *Entry) write(path string) (time.Time, error) {
	bytes, err := e.Marshal()
	if err != nil {
		return time.Time{}, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	if _, err := f.Write(bytes); err != nil {
		return time.Time{}, fmt.Errorf("unable to write entry %s: %w", e.ID, err)
	}
	if err := f.Sync(); err != nil {
		return time.Time{}, fmt.Errorf("unable to sync entry %s: %w", e.ID, err)
	}
	finfo, err := f.Stat()
	if err != nil {
		return time.Time{}, err
	}
	e.path = path
	return finfo.ModTime(), nil
}

// newerFirst orders entries the way rows of a month are shown.
func newerFirst(a, b *Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
