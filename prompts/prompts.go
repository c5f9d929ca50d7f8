// Package prompts serves the daily speaking prompt.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cppla/voicebloom/activity"
)

var ErrEmptyCatalog = errors.New("prompt catalog is empty")

var defaultPrompts = []string{
	"What's your favorite place you've ever visited and why?",
	"If you could have dinner with anyone, living or dead, who would it be and why?",
	"Describe the most beautiful thing you've ever seen.",
	"What's a skill you'd like to learn and why?",
	"Describe a perfect day from morning to night.",
	"What's a book or movie that changed your perspective?",
	"If you could live anywhere in the world, where would it be?",
	"What's a small everyday thing that brings you joy?",
	"What advice would you give to your younger self?",
	"Describe a challenge you've overcome and how it changed you.",
}

// Catalog is an ordered, non-empty list of prompts.
type Catalog struct {
	prompts []string
}

// Daily is the prompt of one calendar day.
type Daily struct {
	Date   string `json:"date"`
	Prompt string `json:"prompt"`
}

type catalogFile struct {
	Prompts []string `yaml:"prompts"`
}

func Default() *Catalog {
	return &Catalog{prompts: append([]string(nil), defaultPrompts...)}
}

func New(list []string) (*Catalog, error) {
	var out []string
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyCatalog
	}
	return &Catalog{prompts: out}, nil
}

// Load reads a YAML catalog of the form `prompts: [...]`. An empty path
// yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load prompts %q: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts %q: %w", path, err)
	}
	c, err := New(f.Prompts)
	if err != nil {
		return nil, fmt.Errorf("prompts %q: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.prompts) }

func (c *Catalog) All() []string {
	return append([]string(nil), c.prompts...)
}

// For picks the prompt of the calendar day containing now, in now's location.
// Every caller sees the same prompt for the whole day and consecutive days
// walk through the catalog in order.
func (c *Catalog) For(now time.Time) Daily {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	idx := int(day % int64(len(c.prompts)))
	if idx < 0 {
		idx += len(c.prompts)
	}
	return Daily{Date: activity.KeyOf(now, now.Location()), Prompt: c.prompts[idx]}
}
