package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	pqtotp "github.com/pquerna/otp/totp"
)

func TestGenerateCodeRFC4226Vectors(t *testing.T) {
	key := []byte("12345678901234567890")
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}

	for counter, expected := range want {
		if got := GenerateCode(key, uint64(counter)); got != expected {
			t.Errorf("counter %d: got %s, want %s", counter, got, expected)
		}
	}
}

func TestGenerateCodeMatchesReferenceLibrary(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"

	key, err := DecodeBase32(secret)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	want, err := hotp.GenerateCodeCustom(secret, 1, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("reference generation failed: %v", err)
	}

	got := GenerateCode(key, 1)
	if got != want {
		t.Fatalf("counter 1: got %s, reference library says %s", got, want)
	}
	if got != "996554" {
		t.Fatalf("counter 1: got %s, want 996554", got)
	}
}

func TestCodeAtAgreesWithReferenceTOTP(t *testing.T) {
	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	for _, ts := range []int64{59, 1111111109, 1234567890, 2000000000} {
		at := time.Unix(ts, 0)
		want, err := pqtotp.GenerateCode(secret, at)
		if err != nil {
			t.Fatalf("reference generation failed: %v", err)
		}
		got, err := CodeAt(secret, at)
		if err != nil {
			t.Fatalf("CodeAt failed: %v", err)
		}
		if got != want {
			t.Errorf("t=%d: got %s, want %s", ts, got, want)
		}
	}
}

func TestBase32(t *testing.T) {
	t.Run("encodes without padding", func(t *testing.T) {
		if got := EncodeBase32([]byte("12345678901234567890")); got != "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ" {
			t.Fatalf("unexpected encoding %s", got)
		}
		if got := EncodeBase32([]byte("f")); got != "MY" {
			t.Fatalf("expected unpadded MY, got %s", got)
		}
	})

	t.Run("decodes user-entered variants", func(t *testing.T) {
		for _, in := range []string{"MY", "my", "MY======", "m y"} {
			raw, err := DecodeBase32(in)
			if err != nil || string(raw) != "f" {
				t.Errorf("DecodeBase32(%q) = %q, %v", in, raw, err)
			}
		}
	})

	t.Run("rejects characters outside the alphabet", func(t *testing.T) {
		if _, err := DecodeBase32("JBSWY3DP1"); err == nil {
			t.Fatal("expected '1' to be rejected")
		}
	})

	t.Run("roundtrips random lengths", func(t *testing.T) {
		for n := 1; n <= 40; n++ {
			raw := []byte(strings.Repeat("\xa5", n))
			back, err := DecodeBase32(EncodeBase32(raw))
			if err != nil || string(back) != string(raw) {
				t.Fatalf("length %d did not roundtrip: %v", n, err)
			}
		}
	})
}

func TestValidateWindow(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	now := time.Unix(1_700_000_015, 0)

	codeFor := func(offset time.Duration) string {
		code, err := CodeAt(secret, now.Add(offset))
		if err != nil {
			t.Fatalf("CodeAt failed: %v", err)
		}
		return code
	}

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current step", 0, true},
		{"previous step", -Period, true},
		{"next step", Period, true},
		{"two steps behind", -2 * Period, false},
		{"two steps ahead", 2 * Period, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validate(secret, codeFor(tt.offset), now); got != tt.want {
				t.Fatalf("validate = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("malformed inputs fail", func(t *testing.T) {
		if validate(secret, "12345", now) || validate(secret, "abcdefg", now) || validate("!!", codeFor(0), now) {
			t.Fatal("expected malformed input to fail validation")
		}
	})
}

func TestProvisioningURI(t *testing.T) {
	got := ProvisioningURI("MoneyMapper", "alice@example.com", "JBSWY3DPEHPK3PXP")
	want := "otpauth://totp/MoneyMapper:alice@example.com?secret=JBSWY3DPEHPK3PXP&issuer=MoneyMapper&algorithm=SHA1&digits=6&period=30"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestBackupCodeCodec(t *testing.T) {
	codes, err := generateBackupCodes()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	for _, c := range codes {
		if len(c) != 8 || strings.Trim(c, "0123456789") != "" {
			t.Fatalf("expected 8-digit code, got %q", c)
		}
	}

	decoded := decodeBackupCodes(encodeBackupCodes(codes))
	if strings.Join(decoded, ",") != strings.Join(codes, ",") {
		t.Fatalf("codec did not roundtrip: %v vs %v", decoded, codes)
	}
	if decodeBackupCodes("") != nil {
		t.Fatal("expected empty blob to decode to nil")
	}

	remaining, ok := consumeBackupCode(decoded, codes[3])
	if !ok || len(remaining) != 9 {
		t.Fatalf("expected code consumed, ok=%v remaining=%d", ok, len(remaining))
	}
	if _, ok := consumeBackupCode(remaining, codes[3]); ok {
		t.Fatal("expected consumed code to be gone")
	}
	if len(decoded) != 10 {
		t.Fatal("expected consume not to mutate its input")
	}
}
