// Package devportal talks to the Xcode developer services API through an authorized account.
package devportal

import (
	"fmt"
	"net/http"
	"strings"

	"gitee.com/kxapp/kxapp-common/errorz"
	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/gsa"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

const (
	DefaultHost     = "https://developerservices2.apple.com"
	ClientID        = "XABBG36SBA"
	ProtocolVersion = "QH65B2"

	resultCodeUnauthorized = 1100
)

// Sender is the part of an account the portal client needs.
type Sender interface {
	Send(req account.Request) (*account.Response, error)
}

type DeviceType string

const (
	DeviceAny     DeviceType = ""
	DeviceIOS     DeviceType = "ios"
	DeviceTVOS    DeviceType = "tvos"
	DeviceWatchOS DeviceType = "watchos"
)

func (d DeviceType) segment() string {
	switch strings.ToLower(string(d)) {
	case "ios", "tvos", "watchos":
		return strings.ToLower(string(d)) + "/"
	}
	return ""
}

type Client struct {
	sender Sender
	host   string
	teams  []Team
}

func NewClient(sender Sender, host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{sender: sender, host: strings.TrimRight(host, "/")}
}

func (c *Client) actionURL(deviceType DeviceType, action string) string {
	return fmt.Sprintf("%s/services/%s/%s%s.action?clientId=%s", c.host, ProtocolVersion, deviceType.segment(), action, ClientID)
}

/*
postAction sends one QH65B2 plist request. body is merged into the protocol envelope. A non
zero resultCode is returned as a status error carrying userString or resultString.
*/
func (c *Client) postAction(deviceType DeviceType, action string, body map[string]any) (map[string]any, error) {
	request := map[string]any{
		"clientId":        ClientID,
		"protocolVersion": ProtocolVersion,
		"requestId":       strings.ToUpper(uuid.New().String()),
		"userLocale":      []string{"en_US"},
	}
	for k, v := range body {
		request[k] = v
	}
	response, err := c.sender.Send(account.Request{
		URL:     c.actionURL(deviceType, action),
		Body:    request,
		Headers: map[string]string{"X-Xcode-Version": gsa.XcodeVersion},
		Kind:    account.Structured,
		AppName: gsa.AppIDXcode,
	})
	if err != nil {
		return nil, err
	}
	if response.Data == nil {
		if response.Status == http.StatusOK {
			return map[string]any{}, nil
		}
		return nil, &errorz.StatusError{Status: response.Status, Body: ""}
	}
	if code := toInt(response.Data["resultCode"]); code != 0 {
		message, ok := response.Data["userString"].(string)
		if !ok {
			message, ok = response.Data["resultString"].(string)
		}
		if !ok {
			message = "(null)"
		}
		log.Errorf("%s failed with result code %d: %s", action, code, message)
		if code == resultCodeUnauthorized {
			return nil, errorz.NewUnauthorizedError(message)
		}
		return nil, &errorz.StatusError{Status: code, Body: message}
	}
	return response.Data, nil
}

// field decodes data[name] into T; a missing field is an error.
func field[T any](data map[string]any, action, name string) (*T, error) {
	obj, ok := data[name]
	if !ok {
		return nil, errorz.NewParseDataError(errMissing(action, name))
	}
	result := new(T)
	if err := remarshal(obj, result); err != nil {
		return nil, err
	}
	return result, nil
}

// remarshal moves a decoded plist value into a typed record by a plist round trip.
func remarshal(obj any, v any) error {
	bt, e := plist.Marshal(obj, plist.XMLFormat)
	if e == nil {
		_, e = plist.Unmarshal(bt, v)
	}
	if e != nil {
		return errorz.NewParseDataError(e)
	}
	return nil
}

func errMissing(action, name string) error {
	return fmt.Errorf("%s response does not contain %s", action, name)
}

func toInt(v any) int {
	switch n := v.(type) {
	case uint64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
