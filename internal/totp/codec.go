package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	Digits = 6
	Period = 30 * time.Second
	// Skew is the number of steps accepted either side of the current one.
	Skew = 1
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeBase32 renders raw secret bytes in the RFC 4648 alphabet without
// padding, as authenticator apps expect.
func EncodeBase32(raw []byte) string {
	return b32.EncodeToString(raw)
}

// DecodeBase32 accepts the forms users paste: lower case, spaces, dashes and
// trailing padding.
func DecodeBase32(secret string) ([]byte, error) {
	cleaned := strings.ToUpper(secret)
	cleaned = strings.NewReplacer(" ", "", "-", "", "=", "").Replace(cleaned)
	raw, err := b32.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 secret: %w", err)
	}
	return raw, nil
}

// Counter is the RFC 6238 time step containing t.
func Counter(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(Period/time.Second)
}

// GenerateCode is RFC 4226 HOTP with HMAC-SHA1 and six digits.
func GenerateCode(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", value%1_000_000)
}

// CodeAt returns the code a correctly synced authenticator shows at t.
func CodeAt(secret string, t time.Time) (string, error) {
	key, err := DecodeBase32(secret)
	if err != nil {
		return "", err
	}
	return GenerateCode(key, Counter(t)), nil
}

// validate compares code against the steps around t.
func validate(secret, code string, t time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return false
	}
	key, err := DecodeBase32(secret)
	if err != nil || len(key) == 0 {
		return false
	}

	current := Counter(t)
	match := false
	for delta := -Skew; delta <= Skew; delta++ {
		counter := int64(current) + int64(delta)
		if counter < 0 {
			continue
		}
		if hmac.Equal([]byte(GenerateCode(key, uint64(counter))), []byte(code)) {
			match = true
		}
	}
	return match
}

// ProvisioningURI builds the otpauth:// link rendered into the setup QR code.
func ProvisioningURI(issuer, account, secret string) string {
	return fmt.Sprintf(
		"otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		issuer, account, secret, issuer, Digits, int(Period/time.Second),
	)
}
