package signing

import (
	"crypto/md5" //nolint:gosec // scheme dictated by the validating server
	"encoding/hex"
	"strings"
	"time"
)

// SchemeMD5Salt is the legacy salted-MD5 scheme: the sorted key/value pairs
// are concatenated and wrapped in the salt on both sides before hashing.
const SchemeMD5Salt = "md5-salt"

// MD5SaltGenerator implements the md5-salt scheme.
type MD5SaltGenerator struct{}

// NewMD5SaltGenerator returns the generator for SchemeMD5Salt.
func NewMD5SaltGenerator() *MD5SaltGenerator {
	return &MD5SaltGenerator{}
}

// Scheme returns the registry key.
func (g *MD5SaltGenerator) Scheme() string { return SchemeMD5Salt }

// Match looks for the app_key shape used by salted-MD5 endpoints.
func (g *MD5SaltGenerator) Match(params map[string]string) bool {
	_, ok := params["app_key"]
	return ok
}

// Tolerance: these endpoints validate against a generous minute-scale skew.
func (g *MD5SaltGenerator) Tolerance() time.Duration { return time.Minute }

// Generate computes uppercase-hex MD5 over salt + k1v1k2v2... + salt.
func (g *MD5SaltGenerator) Generate(req Request) (Result, error) {
	salt, err := req.Creds.Get("salt")
	if err != nil {
		return Result{}, err
	}
	var b strings.Builder
	b.WriteString(salt)
	for _, k := range sortedKeys(req.Params) {
		b.WriteString(k)
		b.WriteString(req.Params[k])
	}
	b.WriteString(salt)

	sum := md5.Sum([]byte(b.String())) //nolint:gosec
	sig := strings.ToUpper(hex.EncodeToString(sum[:]))

	signed := copyParams(req.Params)
	signed["sign"] = sig
	return Result{
		Scheme:    SchemeMD5Salt,
		Signature: sig,
		Params:    signed,
	}, nil
}
