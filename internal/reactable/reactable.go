// Package reactable parses and compares the emoji that can be used as message reactions.
//
// A reactable is either a unicode emoji or a guild custom emoji written as
// <:name:id>, <a:name:id> or name:id.
package reactable

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
)

// ErrInvalid is returned when a string is not a usable reaction emoji.
var ErrInvalid = errors.New("invalid emoji")

// MaxLength bounds the stored display form of a reactable.
const MaxLength = 35

var (
	customRe = regexp.MustCompile(`^<(a?):([A-Za-z0-9_~]{1,32}):(\d{1,20})>$`)
	bareRe   = regexp.MustCompile(`^([A-Za-z0-9_~]{1,32}):(\d{1,20})$`)
)

// Reactable is a unicode or custom emoji.
type Reactable struct {
	Name     string
	ID       snowflake.ID
	Animated bool
}

// Parse converts user input into a Reactable.
func Parse(s string) (Reactable, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reactable{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if m := customRe.FindStringSubmatch(s); m != nil {
		id, err := snowflake.Parse(m[3])
		if err != nil || id == 0 {
			return Reactable{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		return Reactable{Name: m[2], ID: id, Animated: m[1] == "a"}, nil
	}
	if m := bareRe.FindStringSubmatch(s); m != nil {
		id, err := snowflake.Parse(m[2])
		if err != nil || id == 0 {
			return Reactable{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		return Reactable{Name: m[1], ID: id}, nil
	}
	if len(s) > MaxLength || !IsUnicodeEmoji(s) {
		return Reactable{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Reactable{Name: s}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Reactable {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// IsCustom reports whether r is a guild custom emoji.
func (r Reactable) IsCustom() bool {
	return r.ID != 0
}

// APIName is the form the chat API expects when adding or removing a reaction.
func (r Reactable) APIName() string {
	if r.IsCustom() {
		return r.Name + ":" + r.ID.String()
	}
	return r.Name
}

// String renders r the way it appears in message text.
func (r Reactable) String() string {
	if !r.IsCustom() {
		return r.Name
	}
	prefix := "<:"
	if r.Animated {
		prefix = "<a:"
	}
	return prefix + r.Name + ":" + r.ID.String() + ">"
}

// Key identifies r for equality. Custom emoji compare by ID, unicode emoji by
// their codepoints without variation selectors.
func (r Reactable) Key() string {
	if r.IsCustom() {
		return r.ID.String()
	}
	return strings.ReplaceAll(r.Name, "\ufe0f", "")
}

// Equal reports whether r and o denote the same reaction.
func (r Reactable) Equal(o Reactable) bool {
	return r.Key() == o.Key()
}

const (
	zwj          = '\u200d'
	vs16         = '\ufe0f'
	keycap       = '\u20e3'
	tagEnd       = '\U000e007f'
	regionalLow  = '\U0001f1e6'
	regionalHigh = '\U0001f1ff'
	skinLow      = '\U0001f3fb'
	skinHigh     = '\U0001f3ff'
)

// pictographic approximates the Extended_Pictographic property, minus the
// regional indicators which only form flags in pairs.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00ae, Stride: 5},
		{Lo: 0x203c, Hi: 0x2049, Stride: 13},
		{Lo: 0x2122, Hi: 0x2139, Stride: 23},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21a9, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x231b, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23f3, Stride: 1},
		{Lo: 0x23f8, Hi: 0x23fa, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25ab, Stride: 1},
		{Lo: 0x25b6, Hi: 0x25c0, Stride: 10},
		{Lo: 0x25fb, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b07, Stride: 1},
		{Lo: 0x2b1b, Hi: 0x2b1c, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b55, Stride: 5},
		{Lo: 0x3030, Hi: 0x303d, Stride: 13},
		{Lo: 0x3297, Hi: 0x3299, Stride: 2},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1f1e5, Stride: 1},
		{Lo: 0x1f200, Hi: 0x1faff, Stride: 1},
	},
	LatinOffset: 1,
}

// IsUnicodeEmoji reports whether s is a single emoji: a pictograph with
// optional modifiers, a ZWJ sequence of those, a flag or a keycap.
func IsUnicodeEmoji(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	runes := []rune(s)

	if len(runes) == 2 && isRegional(runes[0]) && isRegional(runes[1]) {
		return true
	}
	if isKeycap(runes) {
		return true
	}

	i := 0
	for {
		n := element(runes[i:])
		if n == 0 {
			return false
		}
		i += n
		if i == len(runes) {
			return true
		}
		if runes[i] != zwj || i+1 == len(runes) {
			return false
		}
		i++
	}
}

// element consumes one pictograph with its modifiers and returns the rune count.
func element(rs []rune) int {
	if len(rs) == 0 || !unicode.Is(pictographic, rs[0]) {
		return 0
	}
	i := 1
	if i < len(rs) && rs[i] == vs16 {
		i++
	}
	if i < len(rs) && rs[i] >= skinLow && rs[i] <= skinHigh {
		i++
	}
	if i < len(rs) && isTag(rs[i]) {
		for i < len(rs) && isTag(rs[i]) && rs[i] != tagEnd {
			i++
		}
		if i == len(rs) || rs[i] != tagEnd {
			return 0
		}
		i++
	}
	return i
}

func isKeycap(rs []rune) bool {
	if len(rs) < 2 || len(rs) > 3 {
		return false
	}
	base := rs[0]
	if !(base >= '0' && base <= '9') && base != '#' && base != '*' {
		return false
	}
	if len(rs) == 3 {
		return rs[1] == vs16 && rs[2] == keycap
	}
	return rs[1] == keycap
}

func isRegional(r rune) bool {
	return r >= regionalLow && r <= regionalHigh
}

func isTag(r rune) bool {
	return r >= 0xe0020 && r <= tagEnd
}
