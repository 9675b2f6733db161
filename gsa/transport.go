package gsa

import (
	"net/http"
	"strings"
	"time"

	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsaerr"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

const (
	DefaultHost    = "https://gsa.apple.com"
	DefaultTimeout = 5 * time.Second

	ContentTypePlist = "text/x-xml-plist"
	UserAgentAKD     = "akd/1.0 CFNetwork/978.0.7 Darwin/18.7.0"
	UserAgentXcode   = "Xcode"
	XcodeVersion     = "11.2 (11B41)"
	AppIDXcode       = "com.apple.gs.xcode.auth"

	servicePath = "/grandslam/GsService2"
)

// HeaderSource yields the current anisette headers. *anisette.Provider satisfies it.
type HeaderSource interface {
	Headers() (anisette.HeaderSet, error)
}

// Transport posts plist requests to the GSA service and the two factor endpoints.
type Transport struct {
	Host       string
	HTTPClient *http.Client
	Anisette   HeaderSource
}

// NewTransport builds a transport whose every call is bounded by timeout.
func NewTransport(host string, timeout time.Duration, source HeaderSource) *Transport {
	if host == "" {
		host = DefaultHost
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := httpz.NewHttpClient(nil)
	client.Timeout = timeout
	return &Transport{Host: strings.TrimRight(host, "/"), HTTPClient: client, Anisette: source}
}

func (t *Transport) url(path string) string {
	return t.Host + path
}

// serviceHeaders are the HTTP headers of init and complete: anisette over the defaults,
// user agent last.
func serviceHeaders(h anisette.HeaderSet) map[string]string {
	headers := map[string]string{
		"Content-Type": ContentTypePlist,
		"Accept":       "*/*",
	}
	h.AddTo(headers)
	headers["User-Agent"] = UserAgentAKD
	return headers
}

type statusHolder interface {
	status() *Status
}

/*
postService wraps req in the versioned envelope, posts it and decodes the Response dict into T.
A non zero Status.ec is returned as an authentication failure carrying the server text.
*/
func postService[T any, PT interface {
	*T
	statusHolder
}](t *Transport, req any, headers map[string]string) (PT, error) {
	body, err := plist.MarshalIndent(requestEnvelope{Header: requestHeader{Version: "1.0.1"}, Request: req}, plist.XMLFormat, "\t")
	if err != nil {
		return nil, gsaerr.Protocol(err, "encode request")
	}
	response := httpz.NewHttpRequestBuilder(http.MethodPost, t.url(servicePath)).AddHeaders(headers).AddBody(body).Request(t.HTTPClient)
	if response.HasError() {
		return nil, gsaerr.Transport(response.Error)
	}
	if response.Status != http.StatusOK {
		e := gsaerr.Protocol(nil, "request failed with http status %d", response.Status)
		e.Status = response.Status
		return nil, e
	}
	var envelope struct {
		Response *T `plist:"Response"`
	}
	if _, err := plist.Unmarshal(response.Body, &envelope); err != nil {
		return nil, gsaerr.Protocol(err, "decode response")
	}
	if envelope.Response == nil {
		return nil, gsaerr.Protocol(nil, "response has no Response dict")
	}
	result := PT(envelope.Response)
	if st := result.status(); st != nil && st.ErrorCode != 0 {
		log.Errorf("gsa error %d: %s", st.ErrorCode, st.ErrorMessage)
		return nil, gsaerr.Server(st.ErrorCode, st.ErrorMessage)
	}
	return result, nil
}
