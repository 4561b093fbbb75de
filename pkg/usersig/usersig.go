// Package usersig derives the time-bounded UserSig token that authenticates
// a recognition session.
package usersig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"math/rand"
	"net/url"
	"strconv"
	"time"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
)

// DefaultTTL is the signature validity window used for a session.
const DefaultTTL = 24 * time.Hour

const maxNonce = 9999999

// Token is a derived signature plus the inputs a connection target needs to
// repeat on the wire. Valid for [IssuedAt, ExpiresAt); recomputed per session.
type Token struct {
	Signature string
	IssuedAt  int64
	ExpiresAt int64
	Nonce     int64
}

// Sign computes the UserSig for the given identifiers and window.
//
// The canonical input is the sorted, URL-encoded parameter set
// {app_id, expired, nonce, sdk_app_id}; the signature is the base64 of its
// HMAC-SHA256 under secretKey. The verifier recomputes the same bytes, so
// canonicalization must stay byte-exact.
func Sign(secretKey string, appID, sdkAppID, expiresAt, nonce int64) (string, error) {
	if secretKey == "" {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "secret key is empty")
	}
	if appID <= 0 || sdkAppID <= 0 {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "app id and sdk app id must be positive")
	}
	if expiresAt <= 0 {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "expiry must be positive")
	}
	if nonce <= 0 {
		return "", errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "nonce must be positive")
	}

	params := url.Values{}
	params.Set("app_id", strconv.FormatInt(appID, 10))
	params.Set("sdk_app_id", strconv.FormatInt(sdkAppID, 10))
	params.Set("expired", strconv.FormatInt(expiresAt, 10))
	params.Set("nonce", strconv.FormatInt(nonce, 10))

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(params.Encode()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// New mints a token for one session. A pre-computed credential UserSig is
// passed through unchanged; otherwise the signature is derived from the
// secret key.
func New(cred *credential.Credential, issuedAt time.Time, ttl time.Duration, nonce int64) (Token, error) {
	if err := cred.Validate(); err != nil {
		return Token{}, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok := Token{
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: issuedAt.Add(ttl).Unix(),
		Nonce:     nonce,
	}
	if cred.UserSig != "" {
		tok.Signature = cred.UserSig
		return tok, nil
	}
	sig, err := Sign(cred.SecretKey, cred.AppID, cred.SDKAppID, tok.ExpiresAt, nonce)
	if err != nil {
		return Token{}, err
	}
	tok.Signature = sig
	return tok, nil
}

// Nonce returns a random nonce in [1, 9999999].
func Nonce() int64 {
	return rand.Int63n(maxNonce) + 1
}
