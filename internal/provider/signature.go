package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Payment-Signature"

var (
	// ErrInvalidSignature is returned when no v1 signature matches.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSignatureExpired is returned when the signed timestamp is outside the tolerance.
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
)

// Verifier authenticates webhook payloads.
type Verifier interface {
	Verify(payload []byte, header string) error
}

// HMACVerifier checks `t=<unix>,v1=<hex>` headers signed with a shared secret
// over "<t>.<payload>".
type HMACVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewHMACVerifier builds a verifier; tolerance <= 0 disables the timestamp check.
func NewHMACVerifier(secret string, tolerance time.Duration) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify reports whether header is a valid signature of payload.
func (v *HMACVerifier) Verify(payload []byte, header string) error {
	if header == "" {
		return fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}
	var (
		timestamp string
		sigs      []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if timestamp == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(unix, 0))
		if age > v.tolerance || age < -v.tolerance {
			return ErrSignatureExpired
		}
	}

	expected := v.mac(timestamp, payload)
	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign produces a header for payload at t.
func (v *HMACVerifier) Sign(payload []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(v.mac(ts, payload))
}

func (v *HMACVerifier) mac(timestamp string, payload []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(payload)
	return h.Sum(nil)
}
