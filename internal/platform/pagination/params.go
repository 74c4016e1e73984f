// Package pagination handles page sizes and the opaque cursor tokens of the order listings.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Request is the paging input of one list call. Size 0 asks for the default.
type Request struct {
	Size  int
	Token string
}

// FromQuery reads pageSize and pageToken. The token is decoded here so a malformed one is rejected
// before any store access; it is passed on in its encoded form.
func FromQuery(values url.Values) (Request, error) {
	var req Request
	if raw := strings.TrimSpace(values.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			return Request{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		case size < 0:
			return Request{}, fmt.Errorf("%w: must not be negative", ErrInvalidPageSize)
		}
		req.Size = size
	}
	if raw := strings.TrimSpace(values.Get("pageToken")); raw != "" {
		if _, err := DecodeToken(raw); err != nil {
			return Request{}, err
		}
		req.Token = raw
	}
	return req, nil
}

// Clamp applies the default to an unset size and caps it at max. Non-positive def and max fall
// back to the package defaults.
func Clamp(size, def, max int) int {
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	if def <= 0 {
		def = DefaultPageSize
	}
	if size <= 0 {
		size = def
	}
	return min(size, max)
}
