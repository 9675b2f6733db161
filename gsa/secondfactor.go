package gsa

import (
	"net/http"

	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsaerr"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	trustedDevicePath = "/auth/verify/trusteddevice"
	validatePath      = "/grandslam/GsService2/validate"
	phonePath         = "/auth/verify/phone/"
	phoneCodePath     = "/auth/verify/phone/securitycode"
)

func trustedDeviceHeaders(session *SessionPackage, h anisette.HeaderSet) map[string]string {
	headers := map[string]string{
		"Accept":                 ContentTypePlist,
		"X-Apple-Identity-Token": session.IdentityToken(),
		"X-Xcode-Version":        XcodeVersion,
		"X-Apple-App-Info":       AppIDXcode,
		"Content-Type":           ContentTypePlist,
		"Accept-Language":        "en-us",
		"Loc":                    h.Locale,
	}
	h.AddTo(headers)
	headers["User-Agent"] = UserAgentXcode
	return headers
}

func smsHeaders(session *SessionPackage, h anisette.HeaderSet) map[string]string {
	headers := map[string]string{
		"Content-Type":           "application/json",
		"Accept":                 "application/json, text/javascript, */*",
		"X-Apple-Identity-Token": session.IdentityToken(),
		"X-Apple-App-Info":       AppIDXcode,
		"X-Xcode-Version":        XcodeVersion,
	}
	h.AddTo(headers)
	headers["User-Agent"] = UserAgentXcode
	return headers
}

type phoneNumber struct {
	ID int `json:"id"`
}

type securityCode struct {
	Code string `json:"code"`
}

type phoneVerification struct {
	PhoneNumber  phoneNumber   `json:"phoneNumber"`
	Mode         string        `json:"mode"`
	SecurityCode *securityCode `json:"securityCode,omitempty"`
}

/*
trustedDeviceSecondFactor asks Apple to prompt the trusted devices of the account, then
sends the code the user read off a device to the validate endpoint.
*/
func (e *Engine) trustedDeviceSecondFactor(session *SessionPackage, codes CodeProvider) error {
	t := e.transport
	h, err := t.Anisette.Headers()
	if err != nil {
		return err
	}
	headers := trustedDeviceHeaders(session, h)
	response := httpz.NewHttpRequestBuilder(http.MethodGet, t.url(trustedDevicePath)).AddHeaders(headers).Request(t.HTTPClient)
	if response.HasError() {
		return gsaerr.Transport(response.Error)
	}
	if !isSuccess(response.Status) {
		log.Errorf("trusted device prompt failed, status: %v , body: %s", response.Status, string(response.Body))
		return statusFailure(response, "trusted device prompt")
	}

	code, err := codes.SecurityCode(SecondFactorTrustedDevice)
	if err != nil {
		return gsaerr.Authentication("no security code: %v", err)
	}
	headers["security-code"] = code
	response = httpz.NewHttpRequestBuilder(http.MethodGet, t.url(validatePath)).AddHeaders(headers).Request(t.HTTPClient)
	if response.HasError() {
		return gsaerr.Transport(response.Error)
	}
	if response.Status != http.StatusOK {
		log.Errorf("trusted device code rejected, status: %v , body: %s", response.Status, string(response.Body))
		return statusFailure(response, "trusted device code rejected")
	}
	log.Info("trusted device verification accepted")
	return nil
}

// smsSecondFactor has a code texted to the first phone number on file and submits it.
func (e *Engine) smsSecondFactor(session *SessionPackage, codes CodeProvider) error {
	t := e.transport
	h, err := t.Anisette.Headers()
	if err != nil {
		return err
	}
	headers := smsHeaders(session, h)
	request := phoneVerification{PhoneNumber: phoneNumber{ID: 1}, Mode: "sms"}
	body, err := json.Marshal(request)
	if err != nil {
		return gsaerr.Protocol(err, "encode sms request")
	}
	response := httpz.NewHttpRequestBuilder(http.MethodPost, t.url(phonePath)).AddHeaders(headers).AddBody(body).Request(t.HTTPClient)
	if response.HasError() {
		return gsaerr.Transport(response.Error)
	}
	if response.Status != http.StatusOK && response.Status != http.StatusCreated {
		log.Errorf("sms request failed, status: %v , body: %s", response.Status, string(response.Body))
		return statusFailure(response, "sms request")
	}

	code, err := codes.SecurityCode(SecondFactorSMS)
	if err != nil {
		return gsaerr.Authentication("no security code: %v", err)
	}
	request.SecurityCode = &securityCode{Code: code}
	body, err = json.Marshal(request)
	if err != nil {
		return gsaerr.Protocol(err, "encode sms code")
	}
	response = httpz.NewHttpRequestBuilder(http.MethodPost, t.url(phoneCodePath)).AddHeaders(headers).AddBody(body).Request(t.HTTPClient)
	if response.HasError() {
		return gsaerr.Transport(response.Error)
	}
	if response.Status != http.StatusOK {
		log.Errorf("sms code rejected, status: %v , body: %s", response.Status, string(response.Body))
		return statusFailure(response, "sms code rejected")
	}
	log.Info("sms verification accepted")
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusFailure(response *httpz.HttpResponse, what string) error {
	e := gsaerr.Authentication("%s with http status %d", what, response.Status)
	e.Status = response.Status
	return e
}
