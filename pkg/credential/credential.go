// Package credential holds the authentication triple for the recognition
// service. The secret key is input only to signing and must never be
// serialized, logged, or placed in a URL.
package credential

import (
	"fmt"
	"log/slog"

	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
)

// Credential identifies one application to the recognition service.
//
// AppID is the cloud account identifier and SDKAppID the application
// identifier, both from the service console. SecretKey is the signing key for
// that application.
type Credential struct {
	AppID     int64
	SDKAppID  int64
	SecretKey string

	// UserSig is an optional pre-computed signature. When set, sessions use
	// it verbatim instead of deriving one from SecretKey, so the secret never
	// has to reach the client process.
	UserSig string
}

// New returns a credential for the given identifiers and secret key.
func New(appID, sdkAppID int64, secretKey string) *Credential {
	return &Credential{AppID: appID, SDKAppID: sdkAppID, SecretKey: secretKey}
}

// SetUserSig installs a pre-computed signature.
func (c *Credential) SetUserSig(userSig string) {
	c.UserSig = userSig
}

// String prints the identifiers only, so accidental formatting cannot leak
// the secret material.
func (c *Credential) String() string {
	if c == nil {
		return "Credential(nil)"
	}
	return fmt.Sprintf("Credential(app_id=%d, sdk_app_id=%d)", c.AppID, c.SDKAppID)
}

// LogValue keeps the secret material out of structured logs.
func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("Credential(nil)")
	}
	return slog.GroupValue(
		slog.Int64("app_id", c.AppID),
		slog.Int64("sdk_app_id", c.SDKAppID),
	)
}

// Validate checks the credential before any network attempt.
func (c *Credential) Validate() error {
	if c == nil {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "credential is nil")
	}
	if c.AppID <= 0 {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "app id must be positive")
	}
	if c.SDKAppID <= 0 {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "sdk app id must be positive")
	}
	if c.SecretKey == "" && c.UserSig == "" {
		return errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "secret key is empty")
	}
	return nil
}
