package certificate

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// numberAlphabet is base32 without the lookalikes 0/O and 1/I, matching the
// human-readable intent of certificate numbers.
const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const numberSuffixLen = 6

// FormatNumber builds a certificate number from the template code, the
// issue date, and a random suffix: {CODE}-{yyyymmdd}-{XXXXXX}.
func FormatNumber(templateCode string, on time.Time, suffix string) string {
	code := strings.ToUpper(strings.TrimSpace(templateCode))
	if code == "" {
		code = "CERT"
	}
	return fmt.Sprintf("%s-%s-%s", code, on.UTC().Format("20060102"), suffix)
}

func randomSuffix() (string, error) {
	buf := make([]byte, numberSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return string(buf), nil
}

// generateNumber produces a collision-checked certificate number. The random
// suffix gives ~33.5M combinations per template per day, so collisions are
// retry noise rather than a real contention source.
func generateNumber(ctx context.Context, repo Repository, templateCode string, on time.Time, attempts int) (string, error) {
	for range attempts {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		number := FormatNumber(templateCode, on, suffix)

		taken, err := repo.NumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check certificate number: %w", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", ErrNumberGenerationExhausted
}
