package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(user|TICKER|YYYY-MM-DD)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(user, ticker string, entryDate time.Time) string {
	data := fmt.Sprintf("%s|%s|%s",
		user,
		strings.ToUpper(strings.TrimSpace(ticker)),
		entryDate.UTC().Format("2006-01-02"),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
