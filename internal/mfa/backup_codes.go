package mfa

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/common"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

// generateBackupCodes mints n single-use recovery codes, rendered XXXX-XXXX.
func generateBackupCodes(n int) []string {
	codes := make([]string, n)
	for i := range codes {
		raw := make([]byte, params.MFABackupCodeLength/2)
		if _, err := rand.Read(raw); err != nil {
			panic("failed to read random bytes: " + err.Error())
		}
		code := strings.ToUpper(hex.EncodeToString(raw))
		codes[i] = code[:4] + "-" + code[4:]
	}
	return codes
}

// hashBackupCode normalizes formatting before hashing so "ab12-cd34" and
// "AB12CD34" consume the same stored entry.
func hashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	return common.HashSHA256(normalized)
}

func hashBackupCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashBackupCode(code)
	}
	return hashes
}
