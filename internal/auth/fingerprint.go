package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeviceInfo holds the request metadata used for soft device binding.
type DeviceInfo struct {
	UserAgent      string
	IP             string
	AcceptLanguage string
}

// Empty reports whether no device fields are present.
func (d DeviceInfo) Empty() bool {
	return d.UserAgent == "" && d.IP == "" && d.AcceptLanguage == ""
}

// Description returns a short human-readable device label for session lists.
func (d DeviceInfo) Description() string {
	if d.UserAgent == "" {
		return "未知设备"
	}
	if len(d.UserAgent) > 120 {
		return d.UserAgent[:120]
	}
	return d.UserAgent
}

// Fingerprint reduces the device metadata to a stable opaque hash.
// Fingerprinting is best-effort: with no fields present it returns ""
// and callers must never treat that as a failure.
func (d DeviceInfo) Fingerprint() string {
	if d.Empty() {
		return ""
	}
	sum := sha256.Sum256([]byte(d.UserAgent + "|" + d.IP + "|" + d.AcceptLanguage))
	return hex.EncodeToString(sum[:])
}
