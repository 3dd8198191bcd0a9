package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
)

const (
	backupCodeCount = 10
	backupCodeSpace = 100_000_000
)

func generateBackupCodes() ([]string, error) {
	limit := big.NewInt(backupCodeSpace)
	codes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, err
		}
		codes = append(codes, fmt.Sprintf("%08d", n.Int64()))
	}
	return codes, nil
}

func encodeBackupCodes(codes []string) string {
	return strings.Join(codes, ",")
}

func decodeBackupCodes(blob string) []string {
	if blob == "" {
		return nil
	}
	parts := strings.Split(blob, ",")
	codes := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			codes = append(codes, p)
		}
	}
	return codes
}

// consumeBackupCode returns the list without code and whether it was found.
func consumeBackupCode(codes []string, code string) ([]string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return codes, false
	}
	for i, c := range codes {
		if subtle.ConstantTimeCompare([]byte(c), []byte(code)) == 1 {
			remaining := make([]string, 0, len(codes)-1)
			remaining = append(remaining, codes[:i]...)
			return append(remaining, codes[i+1:]...), true
		}
	}
	return codes, false
}
