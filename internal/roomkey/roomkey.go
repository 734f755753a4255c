// Package roomkey maps a pair of account ids to the key addressing
// their conversation. The key is symmetric: both participants resolve
// to the same room regardless of who initiated the connection.
package roomkey

import "fmt"

// Resolve returns the room key for the unordered pair (a, b). The two
// ids are ordered numerically and joined with a separator, so distinct
// pairs can never collide.
func Resolve(a, b int) string {
	if b < a {
		a, b = b, a
	}

	return fmt.Sprintf("%d:%d", a, b)
}
