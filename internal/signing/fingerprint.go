package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// volatileParams are excluded from fingerprints: they change on every call
// while the server accepts their reuse inside the validity window, so they
// would only defeat memoization.
var volatileParams = map[string]struct{}{
	"nonce":    {},
	"_rnd":     {},
	"callback": {},
}

// Fingerprint derives the stable cache key for a signing request: a SHA-256
// over the scheme, the non-volatile parameters in key order, and the
// credential identity. Secret values never enter the fingerprint.
func Fingerprint(scheme string, params map[string]string, creds Credentials) string {
	h := sha256.New()
	io.WriteString(h, scheme)
	io.WriteString(h, "\x00")
	for _, k := range sortedKeys(params) {
		if _, skip := volatileParams[k]; skip {
			continue
		}
		fmt.Fprintf(h, "%s=%s&", k, params[k])
	}
	io.WriteString(h, "\x00")
	io.WriteString(h, creds.Identity())
	return hex.EncodeToString(h.Sum(nil))
}
