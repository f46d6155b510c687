package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// InviteCodeLength is the number of characters in a group invite code.
const InviteCodeLength = 6

// No 0/O or 1/I, so codes survive being read aloud.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var upper = cases.Upper(language.Und)

// GenerateInviteCode returns a random invite code.
func GenerateInviteCode() (string, error) {
	max := big.NewInt(int64(len(inviteAlphabet)))
	var b strings.Builder
	b.Grow(InviteCodeLength)
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode folds full-width input, drops spaces and dashes and upper-cases
// what the user typed.
func NormalizeInviteCode(code string) string {
	code = width.Fold.String(code)
	code = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\n':
			return -1
		}
		return r
	}, code)
	return upper.String(code)
}
