package account

import (
	"net/http"
	"strings"

	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsa"
	"github.com/appuploader/grandslam/gsaerr"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ContentKind int

const (
	// Structured bodies travel as XML property lists.
	Structured ContentKind = iota
	JSON
)

const ContentTypeVndJSON = "application/vnd.api+json"

func (k ContentKind) contentType() string {
	if k == JSON {
		return ContentTypeVndJSON
	}
	return gsa.ContentTypePlist
}

// Request is one authorized call. Method defaults to POST with a body and GET without.
type Request struct {
	URL     string
	Method  string
	Body    any
	Headers map[string]string
	Kind    ContentKind
	AppName string
}

type Response struct {
	Status int
	Header http.Header
	Data   map[string]any
}

/*
Send issues req once, authorized with the app token of req.AppName and the current anisette
headers. Headers are layered defaults, then req.Headers, then anisette, then the Xcode user
agent, then the content headers of req.Kind; later layers win. Any HTTP status is returned to
the caller together with the decoded body.
*/
func (a *Account) Send(req Request) (*Response, error) {
	session := a.Session()
	if session == nil {
		return nil, gsaerr.SessionMissing("send %s requires a login", req.URL)
	}
	if req.AppName == "" {
		return nil, gsaerr.Protocol(nil, "app name is required")
	}
	token, err := a.AppToken(req.AppName)
	if err != nil {
		return nil, err
	}
	h, err := a.anisette.Headers()
	if err != nil {
		return nil, err
	}
	headers := dispatchHeaders(session, token, h, req)

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
		if req.Body != nil {
			method = http.MethodPost
		}
	}
	builder := httpz.NewHttpRequestBuilder(method, req.URL).AddHeaders(headers)
	if req.Body != nil {
		body, err := encodeBody(req.Kind, req.Body)
		if err != nil {
			return nil, gsaerr.Protocol(err, "encode request body")
		}
		builder = builder.AddBody(body)
	}
	log.Debugf("dispatch %s %s as %s", method, req.URL, req.AppName)
	response := builder.Request(a.httpClient)
	if response.HasError() {
		return nil, gsaerr.Transport(response.Error)
	}
	data, err := decodeBody(req.Kind, response.Body)
	if err != nil {
		e := gsaerr.Protocol(err, "decode response of %s", req.URL)
		e.Status = response.Status
		return nil, e
	}
	return &Response{Status: response.Status, Header: response.Header, Data: data}, nil
}

func dispatchHeaders(session *gsa.SessionPackage, token gsa.AppToken, h anisette.HeaderSet, req Request) map[string]string {
	headers := map[string]string{
		"Accept-Language":       "en-us",
		"X-Apple-I-Identity-Id": session.Adsid,
		"X-Apple-GS-Token":      token.Token,
		"X-Apple-Locale":        h.Locale,
		"X-Apple-App-Info":      req.AppName,
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	h.AddTo(headers)
	headers["User-Agent"] = gsa.UserAgentXcode
	headers["Content-Type"] = req.Kind.contentType()
	headers["Accept"] = req.Kind.contentType()
	return headers
}

func encodeBody(kind ContentKind, body any) ([]byte, error) {
	if kind == JSON {
		return json.Marshal(body)
	}
	return plist.Marshal(body, plist.XMLFormat)
}

func decodeBody(kind ContentKind, body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var data map[string]any
	if kind == JSON {
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, err
		}
		return data, nil
	}
	if _, err := plist.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	return data, nil
}
