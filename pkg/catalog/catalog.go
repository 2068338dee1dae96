package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/smith3v/wortschatz/pkg/logger"
	"github.com/smith3v/wortschatz/pkg/progress"
)

var (
	ErrWordNotFound = errors.New("word not found in catalog")
	ErrUnknownLevel = errors.New("unknown catalog level")
)

// Word is one vocabulary entry. IDs are unique within a level.
type Word struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Topic   string `json:"topic"`
	Word    string `json:"word"`
	Article string `json:"article,omitempty"`
	Meaning string `json:"meaning"`
	Example string `json:"example,omitempty"`
}

type levelIndex struct {
	byID    map[string]Word
	ordered []Word
	byTopic map[string][]Word
	topics  []string
}

// Catalog is read-only once built and safe for concurrent readers.
type Catalog struct {
	levels map[progress.Level]*levelIndex
	size   int
}

// New indexes words by level and topic, keeping file order. Entries with an
// unknown level or a repeated id are skipped and logged.
func New(words []Word) *Catalog {
	c := &Catalog{levels: make(map[progress.Level]*levelIndex)}
	for _, w := range words {
		level, err := progress.ParseLevel(w.Level)
		if err != nil {
			logger.Warn("skipping catalog entry with unknown level", "word_id", w.ID, "level", w.Level)
			continue
		}
		w.Level = string(level)

		idx, ok := c.levels[level]
		if !ok {
			idx = &levelIndex{byID: make(map[string]Word), byTopic: make(map[string][]Word)}
			c.levels[level] = idx
		}
		if _, dup := idx.byID[w.ID]; dup {
			logger.Warn("skipping duplicate catalog entry", "word_id", w.ID, "level", w.Level)
			continue
		}
		idx.byID[w.ID] = w
		idx.ordered = append(idx.ordered, w)
		if _, seen := idx.byTopic[w.Topic]; !seen {
			idx.topics = append(idx.topics, w.Topic)
		}
		idx.byTopic[w.Topic] = append(idx.byTopic[w.Topic], w)
		c.size++
	}
	for _, idx := range c.levels {
		slices.Sort(idx.topics)
	}
	return c
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return c.size
}

func (c *Catalog) level(value string) (*levelIndex, error) {
	level, err := progress.ParseLevel(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, value)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, value)
	}
	idx, ok := c.levels[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, value)
	}
	return idx, nil
}

func (c *Catalog) WordByID(level, wordID string) (Word, error) {
	idx, err := c.level(level)
	if err != nil {
		return Word{}, err
	}
	w, ok := idx.byID[strings.TrimSpace(wordID)]
	if !ok {
		return Word{}, fmt.Errorf("%w: %s/%s", ErrWordNotFound, level, wordID)
	}
	return w, nil
}

// Find looks a word up across all levels, lowest level first.
func (c *Catalog) Find(wordID string) (Word, error) {
	if c != nil {
		wordID = strings.TrimSpace(wordID)
		for _, level := range progress.Levels {
			if idx, ok := c.levels[level]; ok {
				if w, found := idx.byID[wordID]; found {
					return w, nil
				}
			}
		}
	}
	return Word{}, fmt.Errorf("%w: %s", ErrWordNotFound, wordID)
}

// WordsByLevelTopic returns the words of a topic in file order. An empty
// topic returns the whole level; an unknown topic returns no words.
func (c *Catalog) WordsByLevelTopic(level, topic string) ([]Word, error) {
	idx, err := c.level(level)
	if err != nil {
		return nil, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return slices.Clone(idx.ordered), nil
	}
	return slices.Clone(idx.byTopic[topic]), nil
}

func (c *Catalog) Topics(level string) ([]string, error) {
	idx, err := c.level(level)
	if err != nil {
		return nil, err
	}
	return slices.Clone(idx.topics), nil
}
