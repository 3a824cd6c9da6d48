package config

import (
	_ "embed"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/byxorna/asynctable/pkg/batch"
	"github.com/byxorna/asynctable/pkg/rangectl"
	"github.com/go-playground/validator"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

var (
	// DefaultEntryTemplate is the body given to entries created from the app
	//go:embed default_entry_template.md
	DefaultEntryTemplate string

	// Default is the configuration used when ~/.asynctable.yaml is missing,
	// and the base that file is layered on
	Default = Config{
		Directory:                 "~/.asynctable.d",
		Tuning:                    rangectl.DefaultTuning,
		LeadingScreensForBatching: batch.DefaultLeadingScreens,
		Workers:                   4,
		InitialMonths:             2,
		MaxMonths:                 24,
		BuildLatency:              40 * time.Millisecond,
		FetchLatency:              400 * time.Millisecond,
		PreviewLines:              3,
		WeekendTags:               []string{"weekend"},
		WorkdayTags:               []string{"work"},
		HolidayTags:               []string{"holiday"},
		StartWorkHours:            9 * time.Hour,
		EndWorkHours:              18*time.Hour + 30*time.Minute,
		EntryTemplate:             DefaultEntryTemplate,
		GlamourStyle:              "auto",
	}
)

type Config struct {
	Directory string `yaml:"directory" validate:"required"`

	Tuning                    rangectl.Tuning `yaml:"tuning"`
	LeadingScreensForBatching float64         `yaml:"leadingScreensForBatching" validate:"gte=0"`
	Workers                   int             `yaml:"workers" validate:"gte=1,lte=64"`

	// InitialMonths are loaded at startup, older ones are fetched as the
	// list is scrolled, up to MaxMonths
	InitialMonths int `yaml:"initialMonths" validate:"gte=1"`
	MaxMonths     int `yaml:"maxMonths" validate:"gtefield=InitialMonths"`

	// simulated cost of rendering a row and of fetching a month
	BuildLatency time.Duration `yaml:"buildLatency" validate:"gte=0"`
	FetchLatency time.Duration `yaml:"fetchLatency" validate:"gte=0"`
	PreviewLines int           `yaml:"previewLines" validate:"gte=0,lte=20"`

	WeekendTags    []string      `yaml:"weekendTags" validate:"unique"`
	WorkdayTags    []string      `yaml:"workdayTags" validate:"unique"`
	HolidayTags    []string      `yaml:"holidayTags" validate:"unique"`
	StartWorkHours time.Duration `yaml:"startWorkHours" validate:"required"`
	EndWorkHours   time.Duration `yaml:"endWorkHours" validate:"required,gtfield=StartWorkHours"`
	EntryTemplate  string        `yaml:"entryTemplate"`
	GlamourStyle   string        `yaml:"glamourStyle" validate:"oneof=auto dark light notty"`
}

func (c Config) Validate() error {
	if err := c.Tuning.Validate(); err != nil {
		return fmt.Errorf("config validation error: tuning: %w", err)
	}
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}
	return nil
}

func NewFromReader(r io.Reader) (*Config, error) {
	c := Default

	bytes, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read Config: %w", err)
	}
	err = yaml.Unmarshal(bytes, &c)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal Config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewFromFile loads path, falling back to Default when the file does not
// exist.
func NewFromFile(path string) (*Config, error) {
	expandedPath, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expandedPath)
	if os.IsNotExist(err) {
		c := Default
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", expandedPath, err)
	}
	defer f.Close()
	return NewFromReader(f)
}
