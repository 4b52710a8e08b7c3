package trackpad

import "fmt"

// parseText returns the candidate whose String form is text.
func parseText[T fmt.Stringer](kind string, text []byte, candidates ...T) (T, error) {
	for _, c := range candidates {
		if c.String() == string(text) {
			return c, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, text)
}
