package room

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/multierr"
	"golang.org/x/text/unicode/norm"

	"github.com/kittynight/naughty-kitty/internal/engine"
)

const MaxNameLength = 20

var ErrInvalidName = errors.New("invalid name")
var ErrInvalidAvatar = errors.New("invalid avatar")

// NormalizeName trims name and puts it in NFC so visually equal names compare
// equal.
func NormalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// ValidateProfile returns the normalized name, or every problem found.
func ValidateProfile(name, avatar string) (string, error) {
	name = NormalizeName(name)

	var err error
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		err = multierr.Append(err, fmt.Errorf("%w: name is required", ErrInvalidName))
	case n > MaxNameLength:
		err = multierr.Append(err, fmt.Errorf("%w: at most %d characters", ErrInvalidName, MaxNameLength))
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: control characters are not allowed", ErrInvalidName))
	}
	if !slices.Contains(engine.Avatars, avatar) {
		err = multierr.Append(err, fmt.Errorf("%w: %q", ErrInvalidAvatar, avatar))
	}
	return name, err
}
