// Command annotation-inspect prints the records and decoded audit lines of
// annotation and suggestion files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fankserver/wordpool-annotator/internal/store"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/sirupsen/logrus"
)

func kindOf(path string) annotation.Kind {
	if strings.TrimPrefix(filepath.Ext(path), ".") == annotation.SuggestionExt {
		return annotation.KindSuggestion
	}
	return annotation.KindAnnotation
}

func inspect(st *store.Store, path string) error {
	kind := kindOf(path)
	f, err := st.Load(path, kind)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", path, kind)
	if f.Annotator != "" {
		fmt.Printf("  annotator: %s\n", f.Annotator)
	}
	for i, r := range f.Records {
		fmt.Printf("  %4d  %s\n", i, annotation.MakeLine(r, kind))
	}
	for _, line := range f.Audit {
		text, err := store.Deobfuscate(line)
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Undecodable audit line")
			continue
		}
		fmt.Printf("  audit: %s\n", text)
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s FILE...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	st := store.New()
	failed := false
	for _, path := range flag.Args() {
		if err := inspect(st, path); err != nil {
			logrus.WithError(err).WithField("path", path).Error("Failed to read file")
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
