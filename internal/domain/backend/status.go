package backend

import stderrors "errors"

// Status returns the HTTP status carried by err, or 0.
func Status(err error) int {
	var s interface{ StatusCode() int }
	if stderrors.As(err, &s) {
		return s.StatusCode()
	}
	return 0
}
