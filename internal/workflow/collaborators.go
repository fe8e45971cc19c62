package workflow

import "github.com/sirupsen/logrus"

// Prompter asks the user for the annotator name. An empty answer means the
// prompt was dismissed.
type Prompter interface {
	AnnotatorName() string
}

// Reporter shows an error to the user.
type Reporter interface {
	ReportError(message string, err error)
}

// Input is the text field the user types words into.
type Input interface {
	Text() string
	Clear()
}

// LogReporter reports errors through logrus.
type LogReporter struct{}

func (LogReporter) ReportError(message string, err error) {
	logrus.WithError(err).Error(message)
}

type noPrompt struct{}

func (noPrompt) AnnotatorName() string { return "" }

// TextInput is an in-memory Input.
type TextInput struct {
	text string
}

// Set replaces the current text.
func (t *TextInput) Set(text string) { t.text = text }

func (t *TextInput) Text() string { return t.text }

func (t *TextInput) Clear() { t.text = "" }
