// Package store reads and writes annotation and suggestion files.
//
// A file is a header line naming the annotator, one record per line, and
// optional audit lines. Header and audit lines start with '#'. Full
// rewrites are staged in a sibling file and then moved over the original.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/sirupsen/logrus"
)

const defaultPerm os.FileMode = 0o640

// Store performs file operations on annotation and suggestion files. It
// holds no open handles; every call opens and closes what it needs.
type Store struct {
	atomic bool
	perm   os.FileMode
}

// Option configures a [Store].
type Option func(*Store)

// WithAtomicReplace selects how rewrites replace the original. When true
// (the default) the staged file, header included, is renamed over the
// original in one step. When false the original is deleted, the staged file
// renamed into place and the header prepended afterwards; a crash between
// the delete and the rename loses the file.
func WithAtomicReplace(atomic bool) Option {
	return func(s *Store) {
		s.atomic = atomic
	}
}

// WithPermissions sets the mode of files the store creates.
func WithPermissions(perm os.FileMode) Option {
	return func(s *Store) {
		if perm != 0 {
			s.perm = perm
		}
	}
}

// New returns a Store.
func New(opts ...Option) *Store {
	s := &Store{atomic: true, perm: defaultPerm}
	for _, o := range opts {
		o(s)
	}
	return s
}

// File is the parsed content of an annotation or suggestion file.
type File struct {
	Annotator string
	Records   []annotation.Record
	Audit     []string
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create creates an empty file at path if none exists.
func (s *Store) Create(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, s.perm)
	if err != nil {
		return annotation.IOError("store: create", path, err)
	}
	if err := f.Close(); err != nil {
		return annotation.IOError("store: create", path, err)
	}
	return nil
}

// Delete removes path. A missing file is not an error.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return annotation.IOError("store: delete", path, err)
	}
	return nil
}

// HeaderExists reports whether the first line of path is a header. A
// missing file has no header.
func (s *Store) HeaderExists(path string) (bool, error) {
	name, err := s.Annotator(path)
	return name != "", err
}

// Annotator returns the annotator named in the header of path, or "" when
// the file is missing or has no header.
func (s *Store) Annotator(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", annotation.IOError("store: open", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", annotation.IOError("store: read", path, err)
		}
		return "", nil
	}
	name, _ := annotation.AnnotatorFromHeader(sc.Text())
	return name, nil
}

// PrependHeader writes a header for annotator in front of the current
// content of path. The file must exist. The write is not crash safe.
func (s *Store) PrependHeader(path, annotator string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return annotation.IOError("store: read", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return annotation.IOError("store: stat", path, err)
	}
	out := make([]byte, 0, len(data)+len(annotator)+len(annotation.HeaderPrefix)+1)
	out = append(out, annotation.Header(annotator)...)
	out = append(out, '\n')
	out = append(out, data...)
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return annotation.IOError("store: write", path, err)
	}
	return nil
}

// AppendRecord appends r as one line to path, creating the file if needed.
func (s *Store) AppendRecord(path string, r annotation.Record, kind annotation.Kind) error {
	return s.appendLine(path, annotation.MakeLine(r, kind))
}

// AppendAuditField appends text to path as an obfuscated comment line.
func (s *Store) AppendAuditField(path, text string) error {
	return s.appendLine(path, annotation.CommentPrefix+Obfuscate(text))
}

func (s *Store) appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, s.perm)
	if err != nil {
		return annotation.IOError("store: open", path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return annotation.IOError("store: append", path, err)
	}
	if err := f.Close(); err != nil {
		return annotation.IOError("store: close", path, err)
	}
	return nil
}

// RewriteAll replaces the content of path with a header for annotator
// (omitted when empty) followed by records in the given order. Audit lines
// already in the file are kept after the records.
func (s *Store) RewriteAll(path string, records []annotation.Record, annotator string, kind annotation.Kind) error {
	audit, err := s.auditLines(path)
	if err != nil {
		return err
	}

	var lines []string
	if annotator != "" && s.atomic {
		lines = append(lines, annotation.Header(annotator))
	}
	for _, r := range records {
		lines = append(lines, annotation.MakeLine(r, kind))
	}
	lines = append(lines, audit...)

	if err := s.replace(path, lines); err != nil {
		return err
	}
	if annotator != "" && !s.atomic {
		if err := s.PrependHeader(path, annotator); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"path":    path,
		"records": len(records),
		"atomic":  s.atomic,
	}).Debug("Rewrote record file")
	return nil
}

// RemoveRecord rewrites path without the first record equal to r. It
// reports false, leaving the file untouched, when no such record exists.
func (s *Store) RemoveRecord(path string, r annotation.Record, kind annotation.Kind) (bool, error) {
	lines, err := readLines(path)
	if err != nil {
		return false, err
	}

	at := -1
	for i, line := range lines {
		if line == "" || annotation.IsComment(line) {
			continue
		}
		rec, err := annotation.ParseLine(line, kind)
		if err != nil {
			continue
		}
		if annotation.Equal(rec, r) {
			at = i
			break
		}
	}
	if at < 0 {
		return false, nil
	}

	lines = slices.Delete(lines, at, at+1)
	if err := s.replace(path, lines); err != nil {
		return false, err
	}
	return true, nil
}

// Load parses the file at path. A missing file yields an empty File.
// Records are returned in time order.
func (s *Store) Load(path string, kind annotation.Kind) (*File, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, err
	}

	file := &File{}
	for i, line := range lines {
		switch {
		case strings.TrimSpace(line) == "":
			continue
		case i == 0 && annotation.IsHeader(line):
			file.Annotator, _ = annotation.AnnotatorFromHeader(line)
		case annotation.IsComment(line):
			file.Audit = append(file.Audit, line)
		default:
			rec, err := annotation.ParseLine(line, kind)
			if err != nil {
				return nil, fmt.Errorf("store: %s line %d: %w", path, i+1, err)
			}
			file.Records = append(file.Records, rec)
		}
	}
	slices.SortStableFunc(file.Records, annotation.CompareByTime)
	return file, nil
}

func (s *Store) auditLines(path string) ([]string, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var audit []string
	for i, line := range lines {
		if i == 0 && annotation.IsHeader(line) {
			continue
		}
		if annotation.IsComment(line) {
			audit = append(audit, line)
		}
	}
	return audit, nil
}

// replace stages lines in the sibling temp file and moves it over path.
func (s *Store) replace(path string, lines []string) error {
	tmp := annotation.TempPath(path)
	if err := s.writeLines(tmp, lines); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if !s.atomic {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(tmp)
			return annotation.IOError("store: delete old file", path, err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return annotation.IOError("store: rename temp file", tmp, err)
	}
	_ = syncDir(filepath.Dir(path))
	return nil
}

func (s *Store) writeLines(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.perm)
	if err != nil {
		return annotation.IOError("store: create temp file", path, err)
	}
	bw := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			_ = f.Close()
			return annotation.IOError("store: write temp file", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return annotation.IOError("store: flush temp file", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return annotation.IOError("store: sync temp file", path, err)
	}
	if err := f.Close(); err != nil {
		return annotation.IOError("store: close temp file", path, err)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, annotation.IOError("store: read", path, err)
	}
	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	lines := strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines, nil
}
