package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/sirupsen/logrus"
)

// DeleteAnnotation removes the annotation at row from the file and the
// collection. The file is deleted with the last annotation.
func (c *Committer) DeleteAnnotation(row int) error {
	if err := c.removeRow(c.session.Annotations, c.session.AnnotationPath(), row); err != nil {
		c.reporter.ReportError("Deletion not successful. Files may be damaged. Check file system.", err)
		return err
	}
	return nil
}

// DeleteSuggestion removes the suggestion at row from the file and the
// collection. The file is deleted with the last suggestion.
func (c *Committer) DeleteSuggestion(row int) error {
	if err := c.removeRow(c.session.Suggestions, c.session.SuggestionPath(), row); err != nil {
		c.reporter.ReportError("Deletion not successful. Files may be damaged. Check file system.", err)
		return err
	}
	return nil
}

// JumpToSuggestion moves playback to the time of the suggestion at row.
func (c *Committer) JumpToSuggestion(row int) error {
	sug, err := c.session.Suggestions.At(row)
	if err != nil {
		c.reporter.ReportError("Selection is invalid, can't jump to suggestion.", err)
		return err
	}
	frame := c.player.MillisToFrames(sug.Time)
	if frame < 0 || frame > c.player.DurationFrames()-1 {
		err := fmt.Errorf("workflow: suggestion at %v ms is frame %d of %d: %w",
			sug.Time, frame, c.player.DurationFrames(), annotation.ErrOutOfRange)
		c.reporter.ReportError("The suggestion to jump to isn't in range. Please check the suggestion file for errors.", err)
		return err
	}
	if err := c.player.Seek(frame); err != nil {
		c.reporter.ReportError("Could not move playback to the suggestion.", err)
		return err
	}
	return nil
}

// ConvertSuggestion commits the suggestion at row as an annotation at its
// own time and then deletes the suggestion. Wordpool words are committed in
// regular mode, anything else as an intrusion. The placeholder text becomes
// the intrusion sentinel.
func (c *Committer) ConvertSuggestion(ctx context.Context, row int) error {
	sug, err := c.session.Suggestions.At(row)
	if err != nil {
		c.reporter.ReportError("Selection is invalid, can't convert suggestion.", err)
		return err
	}
	if err := c.JumpToSuggestion(row); err != nil {
		return err
	}

	text, mode := sug.Text, ModeIntrusion
	if text == annotation.WordExpected {
		text = ""
	} else if _, ok := c.vocab.FindExact(text); ok {
		mode = ModeRegular
	}

	if err := c.commitAt(ctx, mode, text, c.player.Position()); err != nil {
		return err
	}

	if at := c.session.Suggestions.IndexOf(sug); at >= 0 {
		row = at
	}
	return c.DeleteSuggestion(row)
}

// ImportSuggestions adds the records of recs that are not already listed to
// the suggestion list and rewrites the suggestion file with the merged list.
// It returns the number of records added. A nil batch is rejected.
func (c *Committer) ImportSuggestions(ctx context.Context, recs []annotation.Record) (int, error) {
	if recs == nil {
		err := fmt.Errorf("workflow: import suggestions: %w", annotation.ErrNilBatch)
		c.reporter.ReportError("No suggestions to import.", err)
		return 0, err
	}

	fresh := make([]annotation.Record, 0, len(recs))
	for _, r := range recs {
		if c.session.Suggestions.IndexOf(r) < 0 {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		logrus.WithField("session_id", c.session.ID).Debug("No new suggestions to import")
		return 0, nil
	}

	if err := c.session.Suggestions.BulkInsert(fresh); err != nil {
		c.reporter.ReportError("No suggestions to import.", err)
		return 0, err
	}
	path := c.session.SuggestionPath()
	start := time.Now()
	if err := c.store.RewriteAll(path, c.session.Suggestions.Snapshot(), "", annotation.KindSuggestion); err != nil {
		c.reporter.ReportError("Error writing suggestion file! Check files for damage.", err)
		return len(fresh), err
	}
	c.metrics.RecordRewrite(ctx, annotation.KindSuggestion.String(), time.Since(start))

	logrus.WithFields(logrus.Fields{
		"session_id": c.session.ID,
		"imported":   len(fresh),
		"skipped":    len(recs) - len(fresh),
		"total":      c.session.Suggestions.Len(),
	}).Info("Imported suggestions")
	return len(fresh), nil
}

// Stamp records a user interaction for the activity spans.
func (c *Committer) Stamp() {
	c.session.Spans.StampNow()
}

// WriteSpans appends the pending activity spans to the annotation file.
func (c *Committer) WriteSpans(ctx context.Context) (int, error) {
	path := c.session.AnnotationPath()
	written, err := c.session.Spans.Flush(c.store, path)
	c.metrics.RecordSpans(ctx, len(written))
	if len(written) > 0 {
		c.bus.Publish(feedback.Event{
			Type:      feedback.EventSpansWritten,
			SessionID: c.session.ID,
			Data:      feedback.SpansData{Count: len(written), Path: path},
		})
	}
	if err != nil {
		c.reporter.ReportError("Could not write activity spans.", err)
		return len(written), err
	}
	return len(written), nil
}
