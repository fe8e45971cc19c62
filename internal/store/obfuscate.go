package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fankserver/wordpool-annotator/pkg/annotation"
)

// Obfuscate spells s as its bytes in decimal, each followed by a space.
// Bytes are printed signed (-128..127) so existing audit lines decode the
// same way. It only keeps audit text from being read at a glance.
func Obfuscate(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteString(strconv.Itoa(int(int8(s[i]))))
		b.WriteByte(' ')
	}
	return b.String()
}

// Deobfuscate reverses Obfuscate. A leading comment marker is ignored.
func Deobfuscate(s string) (string, error) {
	s = strings.TrimPrefix(s, annotation.CommentPrefix)
	fields := strings.Fields(s)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < -128 || v > 255 {
			return "", fmt.Errorf("store: deobfuscate %q: %w", f, annotation.ErrInvalidArgument)
		}
		out = append(out, byte(v))
	}
	return string(out), nil
}
