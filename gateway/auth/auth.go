package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderAPIKey is the header containing the caller's API key identifier.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection when combined with the timestamp.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex-encoded HMAC-SHA256 signature for the request.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature is the maximum body size we will hash when authenticating.
	MaxBodyForSignature int = 1 << 20 // 1 MiB

	maxAllowedTimestampSkew = 2 * time.Minute
	defaultTimestampSkew    = maxAllowedTimestampSkew
)

// Principal represents an authenticated API client.
type Principal struct {
	APIKey string
}

type nonceEntry struct {
	seenAt time.Time
}

// Authenticator verifies API key + HMAC signatures on incoming requests.
type Authenticator struct {
	secrets              map[string]string
	allowedTimestampSkew time.Duration
	nowFn                func() time.Time

	nonceMu sync.Mutex
	nonces  map[string]nonceEntry
}

// NewAuthenticator builds an Authenticator keyed by the provided secrets. The
// map should contain API key identifiers mapped to their shared secret.
func NewAuthenticator(secrets map[string]string, skew time.Duration, nowFn func() time.Time) *Authenticator {
	cloned := make(map[string]string, len(secrets))
	for k, v := range secrets {
		cloned[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 || skew > maxAllowedTimestampSkew {
		skew = defaultTimestampSkew
	}
	return &Authenticator{
		secrets:              cloned,
		allowedTimestampSkew: skew,
		nowFn:                nowFn,
		nonces:               make(map[string]nonceEntry),
	}
}

// Authenticate validates headers and signature, returning the caller principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyForSignature)
	}
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if apiKey == "" {
		return nil, errors.New("missing X-Api-Key header")
	}
	secret, ok := a.secrets[apiKey]
	if !ok || secret == "" {
		return nil, errors.New("unknown API key")
	}
	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if timestampHeader == "" {
		return nil, errors.New("missing X-Timestamp header")
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedTimestampSkew {
		return nil, errors.New("timestamp outside allowed window")
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return nil, errors.New("missing X-Nonce header")
	}
	signature := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if signature == "" {
		return nil, errors.New("missing X-Signature header")
	}
	expected := ComputeSignature(secret, timestampHeader, nonce, r.Method, CanonicalRequestPath(r), body)
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return nil, errors.New("signature must be hex encoded")
	}
	if !hmac.Equal(expected, provided) {
		return nil, errors.New("signature mismatch")
	}
	if err := a.rememberNonce(apiKey, timestampHeader, nonce, now); err != nil {
		return nil, err
	}
	return &Principal{APIKey: apiKey}, nil
}

func (a *Authenticator) rememberNonce(apiKey, timestamp, nonce string, now time.Time) error {
	key := apiKey + "|" + timestamp + "|" + nonce
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	cutoff := now.Add(-2 * a.allowedTimestampSkew)
	for k, entry := range a.nonces {
		if entry.seenAt.Before(cutoff) {
			delete(a.nonces, k)
		}
	}
	if _, seen := a.nonces[key]; seen {
		return errors.New("nonce already used")
	}
	a.nonces[key] = nonceEntry{seenAt: now}
	return nil
}

// ComputeSignature returns the raw HMAC-SHA256 over the canonical request
// representation shared with gateway clients.
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(nonce))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(path))
	mac.Write([]byte{'\n'})
	sum := sha256.Sum256(body)
	mac.Write(sum[:])
	return mac.Sum(nil)
}

// CanonicalRequestPath normalises the signed request path.
func CanonicalRequestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return "/"
	}
	path := r.URL.EscapedPath()
	if path == "" {
		return "/"
	}
	return path
}

func parseUnixTimestamp(raw string) (time.Time, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0).UTC(), nil
}
