package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TelegramAssertion is the signed identity payload produced by the
// Telegram login widget. It is verified and discarded, never persisted.
type TelegramAssertion struct {
	ID        int64  `json:"id" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date" binding:"required"`
	Hash      string `json:"hash" binding:"required"`
}

// checkFields returns all signed fields as key/value pairs.
// 空的可选字段不参与签名（widget 不会携带它们）。
func (a *TelegramAssertion) checkFields() map[string]string {
	fields := map[string]string{
		"id":        strconv.FormatInt(a.ID, 10),
		"auth_date": strconv.FormatInt(a.AuthDate, 10),
	}
	if a.FirstName != "" {
		fields["first_name"] = a.FirstName
	}
	if a.LastName != "" {
		fields["last_name"] = a.LastName
	}
	if a.Username != "" {
		fields["username"] = a.Username
	}
	if a.PhotoURL != "" {
		fields["photo_url"] = a.PhotoURL
	}
	return fields
}

// AssertionVerifier validates Telegram login assertions against the
// bot token shared with the identity provider.
type AssertionVerifier struct {
	botToken string
	maxAge   time.Duration

	now func() time.Time // 测试时可替换
}

// NewAssertionVerifier builds a verifier. maxAge <= 0 falls back to 24h.
func NewAssertionVerifier(botToken string, maxAge time.Duration) *AssertionVerifier {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &AssertionVerifier{
		botToken: botToken,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Verify checks the assertion signature and freshness.
// Returns ErrInvalidAssertion on signature mismatch and
// ErrAssertionExpired when auth_date is outside the replay window.
func (v *AssertionVerifier) Verify(a *TelegramAssertion) error {
	if a == nil || a.Hash == "" {
		return ErrInvalidAssertion
	}

	// 按 key 字典序拼接 key=value 行，hash 字段除外
	fields := a.checkFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	checkString := strings.Join(lines, "\n")

	// secret key = SHA256(botToken)
	secret := sha256.Sum256([]byte(v.botToken))

	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal 做恒定时间比较
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(a.Hash))) {
		return ErrInvalidAssertion
	}

	issued := time.Unix(a.AuthDate, 0)
	if v.now().Sub(issued) > v.maxAge {
		return ErrAssertionExpired
	}

	return nil
}

// Sign computes the valid signature for an assertion. Exported for tests
// and local tooling; the production signer is Telegram itself.
func (v *AssertionVerifier) Sign(a *TelegramAssertion) string {
	fields := a.checkFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	secret := sha256.Sum256([]byte(v.botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
