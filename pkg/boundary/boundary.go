// Package boundary frames encoded results so a parent process can pick them
// out of otherwise unstructured child output.
package boundary

import (
	"bufio"
	"io"
	"regexp"

	"github.com/jdziat/confinity/pkg/core"
)

// Envelope markers.
const (
	Prefix = "__CONF_BOUNDARY_"
	Suffix = "_CONF_BOUNDARY__"
)

// Pattern matches a complete envelope line.
var Pattern = regexp.MustCompile(`^` + Prefix + `[A-Za-z0-9+/=]*` + Suffix + `$`)

var envelope = regexp.MustCompile(Prefix + `([A-Za-z0-9+/=]*)` + Suffix)

// Wrap returns encoded inside the boundary markers.
func Wrap(encoded string) string {
	return Prefix + encoded + Suffix
}

// Emitter writes envelopes to the primary output stream.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates an Emitter writing to w, normally os.Stdout.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes one envelope line and flushes it.
func (e *Emitter) Emit(encoded string) error {
	bw := bufio.NewWriterSize(e.w, len(Prefix)+len(encoded)+len(Suffix)+1)
	if _, err := bw.WriteString(Wrap(encoded)); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}

// Extract returns the encoded payload of the last envelope in output.
// The bridge emits only after the target has returned, so a target that
// prints something envelope-shaped cannot displace the real result.
func Extract(output []byte) (string, error) {
	matches := envelope.FindAllSubmatch(output, -1)
	if len(matches) == 0 {
		return "", core.ErrBoundaryNotFound
	}
	return string(matches[len(matches)-1][1]), nil
}
