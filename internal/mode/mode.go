// Package mode owns the active display mode and broadcasts mode transitions.
package mode

import (
	"fmt"
	"strings"

	"github.com/eleven-am/signstream/internal/shared"
)

type Mode string

const (
	ModeLetter   Mode = "letter"
	ModeSentence Mode = "sentence"
)

func (m Mode) String() string {
	return string(m)
}

func (m Mode) Valid() bool {
	return m == ModeLetter || m == ModeSentence
}

func Parse(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidMode, s)
	}
	return m, nil
}
