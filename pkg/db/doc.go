package db

import (
	"time"
)

// Doc is anything a row can present.
type Doc interface {
	Identifier() string
	MatchesFilter(string) bool

	Created() time.Time
	Modified() *time.Time

	// Content pills compose a row's view without the db package knowing
	// anything about rendering
	Title() string
	Summary() string
	AsMarkdown() string
	Icon() string

	Validate() error
	SelectorTags() []string
}
