package wordpool

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Nearest returns the wordpool word closest to text, displayed or hidden.
// It is used to snap recogniser output onto the vocabulary.
//
// An exact match wins with score 1. Otherwise words sharing a Double
// Metaphone code with text are ranked by Jaro-Winkler similarity and
// accepted above the phonetic threshold; when none qualifies, plain
// Jaro-Winkler above the fuzzy threshold is tried.
func (i *Index) Nearest(text string) (Word, float64, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Word{}, 0, false
	}

	inputCodes := metaphoneCodes(needle)

	type candidate struct {
		word     Word
		score    float64
		phonetic bool
		ok       bool
	}
	var best candidate

	for _, set := range [][]Word{i.displayed, i.hidden} {
		for _, w := range set {
			if w.Text == text {
				return w, 1, true
			}
			lower := strings.ToLower(w.Text)
			score := matchr.JaroWinkler(needle, lower, false)
			if codesOverlap(inputCodes, metaphoneCodes(lower)) {
				if score >= i.phoneticThreshold && (!best.phonetic || score > best.score) {
					best = candidate{word: w, score: score, phonetic: true, ok: true}
				}
			} else if !best.phonetic && score >= i.fuzzyThreshold && score > best.score {
				best = candidate{word: w, score: score, ok: true}
			}
		}
	}

	if !best.ok {
		return Word{}, 0, false
	}
	return best.word, best.score, true
}

func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	for _, tok := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(tok)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
