package realtime

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cloud-rtc/trtc-asr-go/pkg/credential"
	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
	"github.com/cloud-rtc/trtc-asr-go/pkg/transports"
	"github.com/cloud-rtc/trtc-asr-go/pkg/usersig"
)

// Endpoint is the production streaming endpoint.
const Endpoint = "wss://asr.cloud-rtc.com"

// Authentication headers sent with the upgrade request.
const (
	headerSDKAppID = "X-TRTC-SdkAppId"
	headerUserSig  = "X-TRTC-UserSig"
)

// buildTarget composes the signed upgrade target for one session. The token
// signature rides both in the query ("signature") and in the user-sig header;
// the secret key itself never appears anywhere in the target.
func buildTarget(endpoint string, cred *credential.Credential, engineModelType string, params Params, voiceID string, tok usersig.Token) (transports.Target, error) {
	if err := cred.Validate(); err != nil {
		return transports.Target{}, err
	}
	if engineModelType == "" {
		return transports.Target{}, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "engine model type is empty")
	}
	if voiceID == "" {
		return transports.Target{}, errorsx.New(errorsx.KindValidation, errorsx.CodeInvalidParam, "voice id is empty")
	}

	q := params.queryValues(cred.AppID, engineModelType, voiceID, tok)
	q.Set("signature", tok.Signature)

	header := http.Header{}
	header.Set(headerSDKAppID, strconv.FormatInt(cred.SDKAppID, 10))
	header.Set(headerUserSig, tok.Signature)

	return transports.Target{
		URL:    fmt.Sprintf("%s/asr/v2/%d?%s", endpoint, cred.AppID, q.Encode()),
		Header: header,
	}, nil
}
