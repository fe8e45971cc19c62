// Package workflow turns user commands into annotation file and collection
// updates for one open audio file.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fankserver/wordpool-annotator/internal/audio"
	"github.com/fankserver/wordpool-annotator/internal/collection"
	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/internal/observe"
	"github.com/fankserver/wordpool-annotator/internal/session"
	"github.com/fankserver/wordpool-annotator/internal/store"
	"github.com/fankserver/wordpool-annotator/internal/wordpool"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/sirupsen/logrus"
)

// ErrRecordNotFound is returned when a record shown in a collection is no
// longer in its file.
var ErrRecordNotFound = errors.New("workflow: record not found in file")

// Committer runs commits and record deletions for one session. It is not
// safe for concurrent use.
type Committer struct {
	session  *session.Session
	vocab    *wordpool.Index
	store    *store.Store
	player   audio.Playback
	prompter Prompter
	reporter Reporter
	input    Input
	bus      *feedback.EventBus
	metrics  *observe.Metrics
	state    State
}

// Option configures a [Committer].
type Option func(*Committer)

// WithPrompter sets where the annotator name comes from when the session
// does not know it yet.
func WithPrompter(p Prompter) Option {
	return func(c *Committer) { c.prompter = p }
}

// WithReporter sets where user-facing errors go.
func WithReporter(r Reporter) Option {
	return func(c *Committer) { c.reporter = r }
}

// WithInput sets the text field commits read from.
func WithInput(in Input) Option {
	return func(c *Committer) { c.input = in }
}

// WithEvents publishes commit and span events on bus.
func WithEvents(bus *feedback.EventBus) Option {
	return func(c *Committer) { c.bus = bus }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Committer) { c.metrics = m }
}

// New returns a Committer for sess.
func New(sess *session.Session, vocab *wordpool.Index, st *store.Store, player audio.Playback, opts ...Option) *Committer {
	c := &Committer{
		session:  sess,
		vocab:    vocab,
		store:    st,
		player:   player,
		prompter: noPrompt{},
		reporter: LogReporter{},
		input:    &TextInput{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Session returns the session the committer works on.
func (c *Committer) Session() *session.Session { return c.session }

// State returns the state the last commit ended in.
func (c *Committer) State() State { return c.state }

// Enabled reports whether commits are possible: audio is open and not
// playing.
func (c *Committer) Enabled() bool {
	return c.player.IsOpen() && c.player.Status() != audio.StatusPlaying
}

// Commit annotates the current playback position with the input text.
//
// Nothing happens when no audio is open (the input is cleared) or when a
// regular commit has empty input or a word outside the wordpool. An empty
// intrusion commit records the intrusion sentinel, which is registered in the
// wordpool like any other intrusion. Failures are reported and returned; steps that
// already touched files are not rolled back.
func (c *Committer) Commit(ctx context.Context, mode Mode) error {
	c.transition(StateIdle)
	if !c.player.IsOpen() {
		c.input.Clear()
		c.abort(ctx, mode, "no audio open")
		return nil
	}
	frame := c.player.Position()
	return c.commitAt(ctx, mode, c.input.Text(), frame)
}

func (c *Committer) commitAt(ctx context.Context, mode Mode, text string, frame int64) error {
	if text == "" {
		if mode != ModeIntrusion {
			c.abort(ctx, mode, "empty input")
			return nil
		}
		text = annotation.IntrusionText
	}
	data := feedback.CommitData{
		Text:      text,
		TimeMs:    c.player.FramesToMillis(frame),
		Intrusion: mode == ModeIntrusion,
	}

	c.transition(StateResolvingVocabulary)
	word, ok := c.vocab.FindExact(text)
	if !ok {
		if mode == ModeRegular {
			// The input is kept for correction.
			c.abort(ctx, mode, "not in wordpool")
			return nil
		}

		c.transition(StateHandlingUnmatched)
		registered, err := c.vocab.Register(text)
		if err != nil {
			return c.fail(ctx, mode, data, "Error appending to wordpool file! Check files for damage.", err)
		}
		c.metrics.RecordRegistration(ctx)
		word = registered
		data.Grew = true
	}
	data.Index = word.Rank
	rec := annotation.NewAnnotation(data.TimeMs, word.Rank, word.Text)

	c.transition(StateEnsuringFileReady)
	path := c.session.AnnotationPath()
	if err := c.ensureFile(path); err != nil {
		return c.fail(ctx, mode, data, "Cannot commit annotation without a ready annotation file.", err)
	}

	c.transition(StateDeletingExistingAtPosition)
	if err := c.deleteAtFrame(path, frame); err != nil {
		return c.fail(ctx, mode, data, "Error replacing the annotation at this position! Check files for damage.", err)
	}
	if !store.Exists(path) {
		if err := c.ensureFile(path); err != nil {
			return c.fail(ctx, mode, data, "Could not re-create the annotation file.", err)
		}
	}

	c.transition(StatePersisting)
	if err := c.store.AppendRecord(path, rec, annotation.KindAnnotation); err != nil {
		return c.fail(ctx, mode, data, "Error committing annotation! Check files for damage.", err)
	}
	if data.Grew {
		c.session.Annotations.ShiftIndices(word.Rank)
		c.session.Annotations.Insert(rec)
		start := time.Now()
		err := c.store.RewriteAll(path, c.session.Annotations.Snapshot(), c.session.Annotator(), annotation.KindAnnotation)
		if err != nil {
			return c.fail(ctx, mode, data, "Error renumbering annotations! Check files for damage.", err)
		}
		c.metrics.RecordRewrite(ctx, annotation.KindAnnotation.String(), time.Since(start))
	} else {
		c.session.Annotations.Insert(rec)
	}

	c.input.Clear()
	c.transition(StateDone)
	c.metrics.RecordCommit(ctx, mode.String(), observe.StatusOK)
	c.bus.PublishCommit(c.session.ID, data)

	logrus.WithFields(logrus.Fields{
		"session_id": c.session.ID,
		"text":       rec.Text,
		"index":      rec.Index,
		"time_ms":    rec.Time,
		"grew":       data.Grew,
	}).Info("Committed annotation")
	return nil
}

// ensureFile creates path if needed and makes sure it starts with a header.
func (c *Committer) ensureFile(path string) error {
	if !store.Exists(path) {
		if err := c.store.Create(path); err != nil {
			return err
		}
	}
	name, err := c.store.Annotator(path)
	if err != nil {
		return err
	}
	if name != "" {
		if c.session.Annotator() == "" {
			c.session.SetAnnotator(name)
		}
		return nil
	}

	name, err = c.annotatorName()
	if err != nil {
		return err
	}
	return c.store.PrependHeader(path, name)
}

// annotatorName returns the cached name, prompting once when it is unknown.
func (c *Committer) annotatorName() (string, error) {
	if name := c.session.Annotator(); name != "" {
		return name, nil
	}
	name := c.prompter.AnnotatorName()
	if name == "" {
		return "", fmt.Errorf("workflow: annotator name: %w", annotation.ErrUserCancelled)
	}
	c.session.SetAnnotator(name)
	return name, nil
}

// deleteAtFrame removes every annotation that falls on frame.
func (c *Committer) deleteAtFrame(path string, frame int64) error {
	rows := c.session.Annotations.Rows(func(r annotation.Record) bool {
		return c.player.MillisToFrames(r.Time) == frame
	})
	for i := len(rows) - 1; i >= 0; i-- {
		if err := c.removeRow(c.session.Annotations, path, rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// removeRow deletes row from the file at path and from coll, deleting the
// file once coll is empty.
func (c *Committer) removeRow(coll *collection.Collection, path string, row int) error {
	rec, err := coll.At(row)
	if err != nil {
		return err
	}
	found, err := c.store.RemoveRecord(path, rec, coll.Kind())
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s %s in %q", ErrRecordNotFound, coll.Kind(), rec, path)
	}
	if err := coll.RemoveAt(row); err != nil {
		return err
	}
	if coll.Len() == 0 {
		if err := c.store.Delete(path); err != nil {
			return err
		}
	}
	return nil
}

func (c *Committer) transition(next State) {
	logrus.WithFields(logrus.Fields{
		"from": c.state.String(),
		"to":   next.String(),
	}).Debug("Commit state")
	c.state = next
}

func (c *Committer) abort(ctx context.Context, mode Mode, reason string) {
	c.transition(StateAborted)
	c.metrics.RecordCommit(ctx, mode.String(), observe.StatusAborted)
	logrus.WithField("reason", reason).Debug("Commit skipped")
}

func (c *Committer) fail(ctx context.Context, mode Mode, data feedback.CommitData, message string, err error) error {
	c.transition(StateAborted)
	status := observe.StatusError
	if errors.Is(err, annotation.ErrUserCancelled) {
		status = observe.StatusCancelled
	}
	c.metrics.RecordCommit(ctx, mode.String(), status)

	c.reporter.ReportError(message, err)
	data.Err = err
	c.bus.PublishCommit(c.session.ID, data)
	return err
}
