package textutil

import (
	"reflect"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	cases := map[string]struct {
		input string
		max   int
		want  string
	}{
		"plain":       {input: "  Leave at the door ", want: "Leave at the door"},
		"strips tags": {input: "<b>Happy</b> birthday<script>alert(1)</script>", want: "Happy birthday"},
		"entities":    {input: "Tom & Jerry", want: "Tom & Jerry"},
		"truncates":   {input: "abcdefgh", max: 3, want: "abc"},
		"multibyte":   {input: "お誕生日おめでとう", max: 4, want: "お誕生日"},
		"empty":       {input: "   ", want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := SanitizeText(tc.input, tc.max); got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}

func TestSanitizeAny(t *testing.T) {
	input := map[string]any{
		"message": "<i>Congrats</i>",
		"layers":  float64(3),
		"toppings": []any{
			"<b>berries</b>",
			true,
		},
		"<p></p>": "dropped",
	}
	want := map[string]any{
		"message":  "Congrats",
		"layers":   float64(3),
		"toppings": []any{"berries", true},
	}
	if got := SanitizeAny(input, 0); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
}
