package anisette

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/appuploader/grandslam/gsaerr"
	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultURL     = "http://localhost:6969"
	DefaultTimeout = 10 * time.Second
	CacheWindow    = 60 * time.Second

	// a Provider serves one identity, so all refreshes share one flight
	refreshKey = "refresh"
)

// numbers stay json.Number so RINFO renders as an integer string
var json = jsoniter.Config{EscapeHTML: true, UseNumber: true}.Froze()

// Provider hands out header sets for one Identity, fetching machine data from an anisette
// v3 server at most once per CacheWindow. Concurrent refreshes share one request.
type Provider struct {
	identity Identity
	url      string
	client   *resty.Client
	now      func() time.Time

	mu         sync.Mutex
	cached     *HeaderSet
	fetchedAt  time.Time
	clientInfo string

	refreshes singleflight.Group
}

type Option func(*Provider)

func WithURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.url = strings.TrimRight(url, "/")
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.client.SetTimeout(d)
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

func NewProvider(identity Identity, opts ...Option) *Provider {
	p := &Provider{
		identity: identity,
		url:      DefaultURL,
		client:   resty.New().SetTimeout(DefaultTimeout),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Identity() Identity {
	return p.identity
}

// Headers returns the current header set from the configured server.
func (p *Provider) Headers() (HeaderSet, error) {
	return p.HeadersFrom("")
}

// HeadersFrom is Headers against an explicit anisette server url.
func (p *Provider) HeadersFrom(serverURL string) (HeaderSet, error) {
	if h, ok := p.fresh(); ok {
		return h, nil
	}
	if serverURL == "" {
		serverURL = p.url
	}
	v, err, _ := p.refreshes.Do(refreshKey, func() (any, error) {
		if h, ok := p.fresh(); ok {
			return h, nil
		}
		return p.refresh(strings.TrimRight(serverURL, "/"))
	})
	if err != nil {
		anisetteRefreshes.WithLabelValues("error").Inc()
		return HeaderSet{}, err
	}
	return v.(HeaderSet), nil
}

// fresh restamps the cached set when it is inside the window.
func (p *Provider) fresh() (HeaderSet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.cached == nil || now.Sub(p.fetchedAt) >= CacheWindow {
		return HeaderSet{}, false
	}
	p.cached.ClientTime = clientTime(now)
	return *p.cached, true
}

type headersRequest struct {
	Identifier       []byte `json:"identifier"`
	ProvisioningBlob []byte `json:"adi_pb"`
}

func (p *Provider) refresh(serverURL string) (HeaderSet, error) {
	machine, err := p.fetchMachineHeaders(serverURL)
	if err != nil {
		log.Errorf("failed to query anisette server at %s: %v", serverURL, err)
		return HeaderSet{}, gsaerr.AnisetteUnavailable(nil)
	}
	p.mu.Lock()
	info := p.clientInfo
	p.mu.Unlock()
	if info == "" {
		info, err = p.fetchClientInfo(serverURL)
		if err != nil {
			log.Errorf("failed to load client info from %s: %v", serverURL, err)
			return HeaderSet{}, gsaerr.AnisetteUnavailable(nil)
		}
	}

	now := p.now()
	h := HeaderSet{
		ClientTime:   clientTime(now),
		MachineData:  machine[HeaderMD],
		LocalUserID:  p.identity.LocalUserID(),
		MachineInfo:  machine[HeaderMDM],
		RoutingInfo:  machine[HeaderMDRINFO],
		SerialNumber: "0",
		TimeZone:     "UTC",
		Locale:       "en_US",
		ClientInfo:   info,
		DeviceID:     p.identity.DeviceID(),
	}

	p.mu.Lock()
	p.clientInfo = info
	p.cached = &h
	p.fetchedAt = now
	p.mu.Unlock()
	anisetteRefreshes.WithLabelValues("ok").Inc()
	log.Debugf("anisette headers refreshed for device %s", h.DeviceID)
	return h, nil
}

func (p *Provider) fetchMachineHeaders(serverURL string) (map[string]string, error) {
	body, err := json.Marshal(headersRequest{Identifier: p.identity.Identifier, ProvisioningBlob: p.identity.ProvisioningBlob})
	if err != nil {
		return nil, err
	}
	resp, err := p.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(body).
		Post(serverURL + "/v3/get_headers")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get_headers returned %d", resp.StatusCode())
	}
	var raw map[string]any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, err
	}
	if _, ok := raw[HeaderMDM]; !ok {
		return nil, fmt.Errorf("get_headers response has no %s: %v", HeaderMDM, raw["message"])
	}
	out := make(map[string]string, 3)
	for _, k := range []string{HeaderMD, HeaderMDM, HeaderMDRINFO} {
		if v, ok := raw[k]; ok && v != nil {
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func (p *Provider) fetchClientInfo(serverURL string) (string, error) {
	resp, err := p.client.R().SetHeader("Accept", "application/json").Get(serverURL + "/v3/client_info")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("client_info returned %d", resp.StatusCode())
	}
	var out struct {
		ClientInfo string `json:"client_info"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", err
	}
	if out.ClientInfo == "" {
		return "", fmt.Errorf("client_info response is empty")
	}
	return out.ClientInfo, nil
}
