package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SchemeHMACSHA256 signs the canonical query with HMAC-SHA256 keyed by the
// app_secret credential. The signature travels in the "sign" parameter.
const SchemeHMACSHA256 = "hmac-sha256"

// HMACSHA256Generator implements the hmac-sha256 scheme.
type HMACSHA256Generator struct{}

// NewHMACSHA256Generator returns the generator for SchemeHMACSHA256.
func NewHMACSHA256Generator() *HMACSHA256Generator {
	return &HMACSHA256Generator{}
}

// Scheme returns the registry key.
func (g *HMACSHA256Generator) Scheme() string { return SchemeHMACSHA256 }

// Match looks for the timestamp+nonce shape typical of HMAC query signing.
func (g *HMACSHA256Generator) Match(params map[string]string) bool {
	_, hasTS := params["timestamp"]
	_, hasNonce := params["nonce"]
	return hasTS && hasNonce
}

// Tolerance mirrors the usual server-side timestamp skew allowance.
func (g *HMACSHA256Generator) Tolerance() time.Duration { return 30 * time.Second }

// Generate produces the lowercase hex HMAC over the sorted k=v&... string.
// Validating servers compare byte-for-byte, so the canonical form is fixed.
func (g *HMACSHA256Generator) Generate(req Request) (Result, error) {
	secret, err := req.Creds.Get("app_secret")
	if err != nil {
		return Result{}, err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalQuery(req.Params)))
	sig := hex.EncodeToString(mac.Sum(nil))

	signed := copyParams(req.Params)
	signed["sign"] = sig
	return Result{
		Scheme:    SchemeHMACSHA256,
		Signature: sig,
		Params:    signed,
	}, nil
}
