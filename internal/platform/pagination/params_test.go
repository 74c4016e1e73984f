package pagination

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestFromQuery(t *testing.T) {
	token, err := EncodeToken(Cursor{CreatedAt: time.Date(2025, time.May, 4, 10, 30, 0, 0, time.UTC), ID: "ord_01"})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}

	tests := []struct {
		name  string
		query string
		want  Request
		err   error
	}{
		{name: "empty", query: ""},
		{name: "size", query: "pageSize=30", want: Request{Size: 30}},
		{name: "zero size means default", query: "pageSize=0"},
		{name: "size and token", query: "pageSize=5&pageToken=" + token, want: Request{Size: 5, Token: token}},
		{name: "not a number", query: "pageSize=abc", err: ErrInvalidPageSize},
		{name: "negative", query: "pageSize=-1", err: ErrInvalidPageSize},
		{name: "garbage token", query: "pageToken=***", err: ErrInvalidPageToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			got, err := FromQuery(values)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromQuery: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestTokenRoundTripKeepsNanoseconds(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	cursor := Cursor{CreatedAt: time.Date(2025, time.May, 4, 19, 30, 0, 123, loc), ID: "ord_01"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	got, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !got.CreatedAt.Equal(cursor.CreatedAt) || got.CreatedAt.Location() != time.UTC || got.ID != "ord_01" {
		t.Fatalf("unexpected cursor %+v", got)
	}
}

func TestDecodeTokenRejectsIncompleteCursors(t *testing.T) {
	for _, payload := range []string{`not-json`, `{}`, `{"t":1700000000000000000}`, `{"id":"ord_1"}`} {
		token := base64.RawURLEncoding.EncodeToString([]byte(payload))
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("payload %s: expected ErrInvalidPageToken, got %v", payload, err)
		}
	}
	if c, err := DecodeToken("  "); err != nil || !c.IsZero() {
		t.Fatalf("expected blank token to mean first page, got %+v %v", c, err)
	}
}

func TestEncodeTokenZeroCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil || token != "" {
		t.Fatalf("expected empty token, got %q err=%v", token, err)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ size, def, max, want int }{
		{0, 10, 50, 10},
		{75, 10, 50, 50},
		{5, 10, 50, 5},
		{0, 0, 0, DefaultPageSize},
		{-3, 80, 50, 50},
	}
	for _, tc := range cases {
		if got := Clamp(tc.size, tc.def, tc.max); got != tc.want {
			t.Errorf("Clamp(%d,%d,%d)=%d want %d", tc.size, tc.def, tc.max, got, tc.want)
		}
	}
}
