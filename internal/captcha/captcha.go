// Package captcha generates the text challenges sent during verification.
package captcha

import (
	"math/rand/v2"
	"strings"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// separator is inserted between rendered characters so a copied challenge
// never equals the answer.
const separator = "\u200b"

// Length of the challenges sent to users.
const Length = 4

// New returns n distinct letters. n is capped at the alphabet size.
func New(n int) string {
	n = min(n, len(letters))
	perm := rand.Perm(len(letters))
	var b strings.Builder
	for _, i := range perm[:n] {
		b.WriteByte(letters[i])
	}
	return b.String()
}

// Render formats code for display.
func Render(code string) string {
	return "**" + strings.Join(strings.Split(code, ""), separator) + "**"
}

// Check reports whether answer solves code. The comparison is
// case-sensitive; surrounding whitespace is ignored.
func Check(code, answer string) bool {
	return code != "" && strings.TrimSpace(answer) == code
}
