package annotation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// File layout constants. They are part of the on-disk format and are not
// configurable at runtime.
const (
	Separator = "\t"

	CommentPrefix = "#"
	HeaderPrefix  = "#Annotator: "

	AnnotationExt   = "tmp"
	SuggestionExt   = "sug"
	DeletionTempExt = "del"
)

var headerPattern = regexp.MustCompile(`^#Annotator: \S.*$`)

// IsHeader reports whether line is an annotator header line.
func IsHeader(line string) bool {
	return headerPattern.MatchString(strings.TrimRight(line, "\r"))
}

// Header returns the header line (without newline) for annotator.
func Header(annotator string) string {
	return HeaderPrefix + annotator
}

// AnnotatorFromHeader extracts the annotator name from a header line.
func AnnotatorFromHeader(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !IsHeader(line) {
		return "", false
	}
	return strings.TrimPrefix(line, HeaderPrefix), true
}

// IsComment reports whether line is a header, audit or other comment line.
func IsComment(line string) bool {
	return strings.HasPrefix(line, CommentPrefix)
}

// Extension returns the file extension (without dot) used for kind.
func (k Kind) Extension() string {
	if k == KindSuggestion {
		return SuggestionExt
	}
	return AnnotationExt
}

// CompanionPath returns the file that stores records of kind for the audio
// file at audioPath: the audio path with its extension swapped.
func CompanionPath(audioPath string, kind Kind) string {
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	return base + "." + kind.Extension()
}

// TempPath returns the sibling file a rewrite of path is staged in.
func TempPath(path string) string {
	return path + "." + DeletionTempExt
}

// MakeLine serialises r as a single line without the trailing newline.
// Annotations are written as time, index, text; suggestions as time,
// confidence, text.
func MakeLine(r Record, kind Kind) string {
	var middle string
	if kind == KindSuggestion {
		middle = formatFloat(r.Confidence)
	} else {
		middle = strconv.Itoa(r.Index)
	}
	return formatFloat(r.Time) + Separator + middle + Separator + r.Text
}

// ParseLine is the inverse of MakeLine.
func ParseLine(line string, kind Kind) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, Separator, 3)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("annotation: parse %q: want 3 fields, got %d: %w", line, len(fields), ErrInvalidArgument)
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("annotation: parse time %q: %w", fields[0], ErrInvalidArgument)
	}
	if kind == KindSuggestion {
		conf, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return Record{}, fmt.Errorf("annotation: parse confidence %q: %w", fields[1], ErrInvalidArgument)
		}
		return NewSuggestion(t, conf, fields[2]), nil
	}
	idx, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Record{}, fmt.Errorf("annotation: parse index %q: %w", fields[1], ErrInvalidArgument)
	}
	return NewAnnotation(t, idx, fields[2]), nil
}

// formatFloat always keeps one decimal digit so files stay readable by
// tools that expect "1000.0" rather than "1000".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
