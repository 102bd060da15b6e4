package referral

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffixLength = 4
	maxCodeAttempts  = 5
)

// CodeGenerator builds a candidate referral code. Uniqueness is enforced by
// the store, not by the generator.
type CodeGenerator func(prefix string, now time.Time) (string, error)

// GenerateCode returns prefix + base36 milliseconds + a random suffix, all
// upper-case, e.g. REFM1ZK3Q9AB7X.
func GenerateCode(prefix string, now time.Time) (string, error) {
	suffix, err := randomSuffix(codeSuffixLength)
	if err != nil {
		return "", err
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return prefix + stamp + suffix, nil
}

func randomSuffix(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// NormalizeCode trims and upper-cases a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
