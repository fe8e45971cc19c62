// Package wordpool holds the controlled vocabulary annotations are matched
// against.
//
// Words are ranked by their 1-based line number in the wordpool file. The
// index keeps a displayed set, sorted by text, and a hidden set of words
// filtered out by a prefix. Exact matching and rank computation only see the
// displayed set.
package wordpool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/sirupsen/logrus"
)

// Word is a vocabulary entry.
type Word struct {
	Text string `json:"text"`
	Rank int    `json:"rank"`
}

// Index is the in-memory wordpool. It is owned by one session and is not
// safe for concurrent use.
type Index struct {
	path      string
	displayed []Word
	hidden    []Word
	bus       *feedback.EventBus

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// Option configures an [Index].
type Option func(*Index)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching word in [Index.Nearest]. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(i *Index) {
		i.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score used by
// [Index.Nearest] when no word matches phonetically. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(i *Index) {
		i.fuzzyThreshold = threshold
	}
}

// WithEvents publishes vocabulary changes on bus.
func WithEvents(bus *feedback.EventBus) Option {
	return func(i *Index) {
		i.bus = bus
	}
}

// New returns an empty index with no backing file.
func New(opts ...Option) *Index {
	i := &Index{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Load reads the wordpool file at path. Registered words are written back to
// the same file.
func Load(path string, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, annotation.IOError("wordpool: open", path, err)
	}
	defer f.Close()

	words, err := ReadWords(f)
	if err != nil {
		return nil, fmt.Errorf("wordpool: read %q: %w", path, err)
	}

	i := New(opts...)
	i.path = path
	i.AddWords(words)
	logrus.WithFields(logrus.Fields{
		"path":  path,
		"words": len(words),
	}).Debug("Loaded wordpool")
	return i, nil
}

// ReadWords parses one word per line. Blank lines are skipped but still
// count towards the rank of the lines after them.
func ReadWords(r io.Reader) ([]Word, error) {
	var words []Word
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		words = append(words, Word{Text: text, Rank: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", annotation.ErrFileIO, err)
	}
	return words, nil
}

// Path returns the backing file, or "" for an in-memory index.
func (i *Index) Path() string { return i.path }

// Len returns the number of displayed words.
func (i *Index) Len() int { return len(i.displayed) }

// Total returns the number of displayed and hidden words.
func (i *Index) Total() int { return len(i.displayed) + len(i.hidden) }

// Displayed returns a copy of the displayed words in display order.
func (i *Index) Displayed() []Word { return slices.Clone(i.displayed) }

// AddWords adds words whose text is not already present, displayed or
// hidden, so that every text maps to one rank. Words with a negative rank
// are rejected.
func (i *Index) AddWords(words []Word) {
	added := 0
	for _, w := range words {
		if w.Rank < 0 {
			logrus.WithField("word", w.Text).Warn("Adding wordpool words with negative line numbers is not allowed")
			continue
		}
		if i.contains(w.Text) {
			continue
		}
		i.displayed = append(i.displayed, w)
		added++
	}
	i.sort()
	i.publish(feedback.ChangeInserted)
	logrus.WithField("added", added).Debug("Wordpool words added")
}

// Clear removes every displayed and hidden word.
func (i *Index) Clear() {
	i.displayed = nil
	i.hidden = nil
	i.publish(feedback.ChangeCleared)
}

// FindExact returns the displayed word whose text equals text exactly.
func (i *Index) FindExact(text string) (Word, bool) {
	for _, w := range i.displayed {
		if w.Text == text {
			return w, true
		}
	}
	return Word{}, false
}

// HideNotStartingWith hides every displayed word that does not start with
// prefix, ignoring case.
func (i *Index) HideNotStartingWith(prefix string) {
	keep := i.displayed[:0:0]
	for _, w := range i.displayed {
		if hasPrefixFold(w.Text, prefix) {
			keep = append(keep, w)
		} else {
			i.hidden = append(i.hidden, w)
		}
	}
	i.displayed = keep
	i.publish(feedback.ChangeRemoved)
}

// RestoreStartingWith moves hidden words that start with prefix, ignoring
// case, back into the displayed set.
func (i *Index) RestoreStartingWith(prefix string) {
	still := i.hidden[:0:0]
	for _, w := range i.hidden {
		if hasPrefixFold(w.Text, prefix) {
			i.displayed = append(i.displayed, w)
		} else {
			still = append(still, w)
		}
	}
	i.hidden = still
	i.sort()
	i.publish(feedback.ChangeInserted)
}

// RankFor returns the rank a new word would get if registered now.
func (i *Index) RankFor(text string) int {
	return RankForNewTerm(i.displayedTexts(), text, 0, len(i.displayed)-1)
}

// Register adds text as a new word at the rank computed by RankFor, moves
// every later word down one rank, and inserts the word as a line of the
// backing file. The in-memory change is kept even when the file write
// fails.
func (i *Index) Register(text string) (Word, error) {
	rank := i.RankFor(text)
	if rank < 1 || rank > i.Total()+1 {
		return Word{}, fmt.Errorf("wordpool: rank %d for %q outside [1, %d]: %w", rank, text, i.Total()+1, annotation.ErrInvariant)
	}

	for _, set := range [][]Word{i.displayed, i.hidden} {
		for j := range set {
			if set[j].Rank >= rank {
				set[j].Rank++
			}
		}
	}
	w := Word{Text: text, Rank: rank}
	i.displayed = append(i.displayed, w)
	i.sort()
	i.publish(feedback.ChangeInserted)

	logrus.WithFields(logrus.Fields{
		"word": text,
		"rank": rank,
	}).Info("Registered new wordpool word")

	if i.path == "" {
		return w, nil
	}
	if err := InsertLine(i.path, text, rank-1); err != nil {
		return w, err
	}
	return w, nil
}

// InsertLine inserts text as line number at (0-based) of the file at path,
// appending when at is past the last line.
func InsertLine(path, text string, at int) error {
	info, err := os.Stat(path)
	if err != nil {
		return annotation.IOError("wordpool: stat", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return annotation.IOError("wordpool: read", path, err)
	}

	var lines []string
	if content := strings.TrimSuffix(string(data), "\n"); content != "" {
		lines = strings.Split(content, "\n")
	}
	if at >= 0 && at < len(lines) {
		lines = slices.Insert(lines, at, text)
	} else {
		lines = append(lines, text)
	}

	out := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return annotation.IOError("wordpool: write", path, err)
	}
	return nil
}

func (i *Index) contains(text string) bool {
	has := func(w Word) bool { return w.Text == text }
	return slices.ContainsFunc(i.displayed, has) || slices.ContainsFunc(i.hidden, has)
}

func (i *Index) displayedTexts() []string {
	texts := make([]string, len(i.displayed))
	for j, w := range i.displayed {
		texts[j] = w.Text
	}
	return texts
}

func (i *Index) sort() {
	slices.SortStableFunc(i.displayed, func(a, b Word) int {
		return strings.Compare(a.Text, b.Text)
	})
}

func (i *Index) publish(kind feedback.ChangeKind) {
	i.bus.PublishVocabularyChanged(feedback.ChangeData{Kind: kind, To: len(i.displayed), Full: true})
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(s), strings.ToUpper(prefix))
}
