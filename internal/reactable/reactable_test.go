package reactable

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Reactable
		wantErr bool
	}{
		{name: "unicode", input: "👍", want: Reactable{Name: "👍"}},
		{name: "unicode with variation selector", input: "❤️", want: Reactable{Name: "❤️"}},
		{name: "skin tone", input: "👍🏽", want: Reactable{Name: "👍🏽"}},
		{name: "zwj sequence", input: "👨‍👩‍👧", want: Reactable{Name: "👨‍👩‍👧"}},
		{name: "flag", input: "🇺🇦", want: Reactable{Name: "🇺🇦"}},
		{name: "keycap", input: "1️⃣", want: Reactable{Name: "1️⃣"}},
		{name: "trims spaces", input: "  🎉 ", want: Reactable{Name: "🎉"}},
		{name: "custom", input: "<:pepe:123456789012345678>", want: Reactable{Name: "pepe", ID: 123456789012345678}},
		{name: "animated", input: "<a:dance:42>", want: Reactable{Name: "dance", ID: 42, Animated: true}},
		{name: "bare custom", input: "pepe:42", want: Reactable{Name: "pepe", ID: 42}},
		{name: "empty", input: "", wantErr: true},
		{name: "plain text", input: "yes", wantErr: true},
		{name: "digit", input: "1", wantErr: true},
		{name: "two emoji", input: "👍👎", wantErr: true},
		{name: "single regional indicator", input: "🇺", wantErr: true},
		{name: "dangling zwj", input: "👨‍", wantErr: true},
		{name: "zero id", input: "<:pepe:0>", wantErr: true},
		{name: "broken custom", input: "<:pepe:>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalid", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestRendering(t *testing.T) {
	tests := []struct {
		r       Reactable
		str     string
		apiName string
		key     string
	}{
		{r: Reactable{Name: "👍"}, str: "👍", apiName: "👍", key: "👍"},
		{r: Reactable{Name: "❤️"}, str: "❤️", apiName: "❤️", key: "❤"},
		{r: Reactable{Name: "pepe", ID: 42}, str: "<:pepe:42>", apiName: "pepe:42", key: "42"},
		{r: Reactable{Name: "dance", ID: 7, Animated: true}, str: "<a:dance:7>", apiName: "dance:7", key: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.r.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.r.APIName(); got != tt.apiName {
				t.Errorf("APIName() = %q, want %q", got, tt.apiName)
			}
			if got := tt.r.Key(); got != tt.key {
				t.Errorf("Key() = %q, want %q", got, tt.key)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Reactable
		want bool
	}{
		{name: "same unicode", a: MustParse("👍"), b: MustParse("👍"), want: true},
		{name: "variation selector ignored", a: MustParse("❤️"), b: Reactable{Name: "❤"}, want: true},
		{name: "different unicode", a: MustParse("👍"), b: MustParse("👎"), want: false},
		{name: "custom renamed", a: MustParse("<:old:42>"), b: Reactable{Name: "new", ID: 42}, want: true},
		{name: "custom vs unicode", a: MustParse("<:x:42>"), b: MustParse("👍"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"🎉", "<:pepe:42>", "<a:dance:7>", "🇺🇦"} {
		r := MustParse(s)
		again, err := Parse(r.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", r.String(), err)
		}
		if diff := cmp.Diff(r, again); diff != "" {
			t.Errorf("round trip %q mismatch (-want +got):\n%s", s, diff)
		}
	}
}
