package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSignature = errors.New("invalid signature")

func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

func NormalizeBoolRU(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "да", "sim", "yes", "true", "1", "y", "on":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256Hex compares sig with the expected hex MAC in constant time.
func VerifyHMACSHA256Hex(secret, msg, sig string) bool {
	if sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(HMACSHA256Hex(secret, msg)))
}

func FormatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExportToken signs a stage id for the public CSV export link.
func ExportToken(secret, stageID string) string {
	return HMACSHA256Hex(secret, "export:"+stageID)
}

func VerifyExportToken(secret, stageID, token string) bool {
	return VerifyHMACSHA256Hex(secret, "export:"+stageID, token)
}

// FormatInstallments renders an installment counter as "paid/total".
func FormatInstallments(paid, total int) string {
	return strconv.Itoa(paid) + "/" + strconv.Itoa(total)
}
