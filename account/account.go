// Package account ties one Apple ID to its anisette identity, GSA session and app tokens,
// and dispatches authorized requests on its behalf.
package account

import (
	"net/http"
	"time"

	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsa"
	log "github.com/sirupsen/logrus"
)

const DefaultDispatchTimeout = 10 * time.Second

type Options struct {
	GSAHost         string
	GSATimeout      time.Duration
	AnisetteURL     string
	AnisetteTimeout time.Duration
	DispatchTimeout time.Duration
}

type Account struct {
	email    string
	anisette *anisette.Provider
	engine   *gsa.Engine
	tokens   *gsa.TokenManager

	httpClient *http.Client
}

// New builds an account for email using a previously provisioned identity. Nothing is sent
// until Login or Send.
func New(email string, identity anisette.Identity, opts Options) *Account {
	provider := anisette.NewProvider(identity, anisette.WithURL(opts.AnisetteURL), anisette.WithTimeout(opts.AnisetteTimeout))
	transport := gsa.NewTransport(opts.GSAHost, opts.GSATimeout, provider)
	timeout := opts.DispatchTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	client := httpz.NewHttpClient(nil)
	client.Timeout = timeout
	return &Account{
		email:      email,
		anisette:   provider,
		engine:     gsa.NewEngine(transport),
		tokens:     gsa.NewTokenManager(transport),
		httpClient: client,
	}
}

func (a *Account) Email() string {
	return a.email
}

func (a *Account) Identity() anisette.Identity {
	return a.anisette.Identity()
}

func (a *Account) State() gsa.State {
	return a.engine.State()
}

// Session is nil until a login succeeded or a snapshot with a session was restored.
func (a *Account) Session() *gsa.SessionPackage {
	return a.tokens.Session()
}

// Login runs the GSA handshake, asking codes for a security code when the account requires a
// second factor. A successful login replaces the session and drops cached tokens.
func (a *Account) Login(password string, codes gsa.CodeProvider) error {
	session, err := a.engine.Login(a.email, password, codes)
	if err != nil {
		log.Errorf("login for %s failed: %v", a.email, err)
		return err
	}
	a.tokens.SetSession(session)
	return nil
}

// AppToken returns an unexpired token for appName, issuing one when needed.
func (a *Account) AppToken(appName string) (gsa.AppToken, error) {
	return a.tokens.AppToken(appName)
}
