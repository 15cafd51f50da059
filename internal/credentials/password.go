package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
	"golang.org/x/crypto/bcrypt"
)

type Policy struct {
	MinLength              int
	RequireUppercase       bool
	RequireLowercase       bool
	RequireNumbers         bool
	RequireSpecialChars    bool
	PreventCommonPasswords bool
}

var DefaultPolicy = Policy{
	MinLength:              params.PasswordMinLength,
	RequireUppercase:       true,
	RequireLowercase:       true,
	RequireNumbers:         true,
	RequireSpecialChars:    true,
	PreventCommonPasswords: true,
}

// commonPasswords is a static denylist of passwords seen in every breach dump.
var commonPasswords = map[string]bool{
	"password": true, "password123": true, "123456": true, "12345678": true,
	"qwerty": true, "abc123": true, "monkey": true, "1234567": true,
	"letmein": true, "trustno1": true, "dragon": true, "baseball": true,
	"iloveyou": true, "master": true, "sunshine": true, "ashley": true,
	"bailey": true, "passw0rd": true, "shadow": true, "123123": true,
	"654321": true, "superman": true, "qazwsx": true, "admin": true,
}

const (
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars     = "0123456789"
	specialChars   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

type ValidationResult struct {
	IsValid bool
	Errors  []string
	Score   int // 0-5 strength score
}

// Validate checks password against policy. It never fails hard; every violated
// rule is reported in Errors and reflected in the score.
func Validate(password string, policy Policy) ValidationResult {
	var errs []string
	score := 0

	if len(password) < policy.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters long", policy.MinLength))
	} else {
		score++
	}

	if policy.RequireUppercase {
		if !strings.ContainsAny(password, uppercaseChars) {
			errs = append(errs, "password must contain at least one uppercase letter")
		} else {
			score++
		}
	}
	if policy.RequireLowercase {
		if !strings.ContainsAny(password, lowercaseChars) {
			errs = append(errs, "password must contain at least one lowercase letter")
		} else {
			score++
		}
	}
	if policy.RequireNumbers {
		if !strings.ContainsAny(password, digitChars) {
			errs = append(errs, "password must contain at least one number")
		} else {
			score++
		}
	}
	if policy.RequireSpecialChars {
		if !strings.ContainsAny(password, specialChars) {
			errs = append(errs, "password must contain at least one special character")
		} else {
			score++
		}
	}

	if policy.PreventCommonPasswords && commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "this password is too common, choose a stronger one")
		score -= 2
	}

	if len(password) >= 16 {
		score++
	}
	if hasRepeatedRun(password) {
		errs = append(errs, "password must not contain repeated consecutive characters")
		score--
	}

	return ValidationResult{
		IsValid: len(errs) == 0,
		Errors:  errs,
		Score:   min(params.PasswordMaxScore, max(0, score)),
	}
}

// hasRepeatedRun reports whether the password contains 3+ identical
// consecutive characters.
func hasRepeatedRun(password string) bool {
	run := 1
	for i := 1; i < len(password); i++ {
		if password[i] == password[i-1] {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// Generate builds a random password containing at least one character from
// each class, then shuffles it.
func Generate(length int) string {
	if length < 4 {
		length = params.GeneratedPasswordSize
	}
	allChars := uppercaseChars + lowercaseChars + digitChars + specialChars

	passwd := make([]byte, 0, length)
	passwd = append(passwd, randomChar(uppercaseChars))
	passwd = append(passwd, randomChar(lowercaseChars))
	passwd = append(passwd, randomChar(digitChars))
	passwd = append(passwd, randomChar(specialChars))
	for len(passwd) < length {
		passwd = append(passwd, randomChar(allChars))
	}

	for i := len(passwd) - 1; i > 0; i-- {
		j := randomInt(i + 1)
		passwd[i], passwd[j] = passwd[j], passwd[i]
	}
	return string(passwd)
}

func StrengthLabel(score int) string {
	switch score {
	case 0:
		return "very weak"
	case 1:
		return "weak"
	case 2:
		return "fair"
	case 3:
		return "good"
	case 4:
		return "strong"
	case 5:
		return "very strong"
	default:
		return "unknown"
	}
}

func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func Check(password string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func randomChar(charset string) byte {
	return charset[randomInt(len(charset))]
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("failed to read random bytes: " + err.Error())
	}
	return int(v.Int64())
}
