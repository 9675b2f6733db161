package gsa

import (
	"encoding/hex"
	"sync"

	"github.com/appuploader/grandslam/gsacrypto"
	"github.com/appuploader/grandslam/gsaerr"
	"github.com/appuploader/grandslam/srp"
	log "github.com/sirupsen/logrus"
)

type State int

const (
	StateInit State = iota
	StateSrpChallenge
	StateAwaitingVerification
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSrpChallenge:
		return "srp-challenge"
	case StateAwaitingVerification:
		return "awaiting-verification"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type SecondFactor int

const (
	SecondFactorNone SecondFactor = iota
	SecondFactorSMS
	SecondFactorTrustedDevice
)

func (f SecondFactor) String() string {
	switch f {
	case SecondFactorSMS:
		return "sms"
	case SecondFactorTrustedDevice:
		return "trusted-device"
	}
	return "none"
}

// CodeProvider blocks until the user has entered the security code for kind.
type CodeProvider interface {
	SecurityCode(kind SecondFactor) (string, error)
}

type CodeProviderFunc func(kind SecondFactor) (string, error)

func (f CodeProviderFunc) SecurityCode(kind SecondFactor) (string, error) {
	return f(kind)
}

// Engine runs GSA logins for one account. Logins are serialized; a second caller waits
// for the first attempt to finish.
type Engine struct {
	transport *Transport

	login   sync.Mutex
	mu      sync.Mutex
	state   State
	pending SecondFactor
}

func NewEngine(transport *Transport) *Engine {
	return &Engine{transport: transport}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending is the factor being verified while the state is StateAwaitingVerification, and
// SecondFactorNone otherwise.
func (e *Engine) Pending() SecondFactor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *Engine) setState(s State) {
	e.setStateFor(s, SecondFactorNone)
}

func (e *Engine) setStateFor(s State, pending SecondFactor) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.pending = pending
	e.mu.Unlock()
	if prev != s {
		log.Debugf("gsa login %s -> %s", prev, s)
	}
}

type attempt struct {
	session *SessionPackage
	factor  SecondFactor
}

/*
Login authenticates username with password. When the server asks for a second factor the
code is obtained from codes, submitted, and the whole handshake runs again from init; the
second pass must not ask for another factor.
*/
func (e *Engine) Login(username, password string, codes CodeProvider) (*SessionPackage, error) {
	e.login.Lock()
	defer e.login.Unlock()

	verified := false
	for {
		e.setState(StateInit)
		a, err := e.handshake(username, password)
		if err != nil {
			return nil, e.fail(err)
		}
		if a.factor == SecondFactorNone {
			if err := a.session.Validate(); err != nil {
				return nil, e.fail(err)
			}
			e.setState(StateAuthenticated)
			loginAttempts.WithLabelValues("ok").Inc()
			log.Infof("login succeeded for %s", username)
			return a.session, nil
		}
		if verified {
			return nil, e.fail(gsaerr.Authentication("second factor still required after verification"))
		}
		if codes == nil {
			return nil, e.fail(gsaerr.Authentication("%s verification required but no code provider given", a.factor))
		}
		e.setStateFor(StateAwaitingVerification, a.factor)
		log.Infof("login for %s requires %s verification", username, a.factor)
		if err := e.verify(a, codes); err != nil {
			return nil, e.fail(err)
		}
		verified = true
	}
}

func (e *Engine) fail(err error) error {
	e.setState(StateFailed)
	loginAttempts.WithLabelValues("error").Inc()
	return err
}

func (e *Engine) verify(a *attempt, codes CodeProvider) error {
	switch a.factor {
	case SecondFactorTrustedDevice:
		return e.trustedDeviceSecondFactor(a.session, codes)
	case SecondFactorSMS:
		return e.smsSecondFactor(a.session, codes)
	}
	return gsaerr.Protocol(nil, "unknown second factor %d", a.factor)
}

// stretchPassword is PBKDF2 over SHA-256(password); s2k_fo feeds the hex text of the digest.
func stretchPassword(password string, salt []byte, iterations int, protocol string) []byte {
	p := gsacrypto.SHA256([]byte(password))
	if protocol == ProtocolS2KFO {
		p = []byte(hex.EncodeToString(p))
	}
	return gsacrypto.PBKDF2(p, salt, iterations, gsacrypto.KeySize)
}

func (e *Engine) handshake(username, password string) (*attempt, error) {
	client, err := srp.NewClient(srp.Group2048, nil)
	if err != nil {
		return nil, gsaerr.Protocol(err, "create srp client")
	}
	h, err := e.transport.Anisette.Headers()
	if err != nil {
		return nil, err
	}
	e.setState(StateSrpChallenge)
	initResp, err := postService[initResponse](e.transport, initRequest{
		A2k:       client.PublicA(),
		Protocols: []string{ProtocolS2K, ProtocolS2KFO},
		UserName:  username,
		Operation: "init",
		CPD:       newCPD(h),
	}, serviceHeaders(h))
	if err != nil {
		return nil, err
	}
	if err := initResp.validate(); err != nil {
		return nil, err
	}

	key := stretchPassword(password, initResp.Salt, initResp.Iterations, initResp.Protocol)
	if err := client.ProcessChallenge([]byte(username), key, initResp.Salt, initResp.B); err != nil {
		return nil, gsaerr.Protocol(err, "process srp challenge")
	}

	h, err = e.transport.Anisette.Headers()
	if err != nil {
		return nil, err
	}
	completeResp, err := postService[completeResponse](e.transport, completeRequest{
		M1:        client.M1(),
		Cookie:    initResp.Cookie,
		UserName:  username,
		Operation: "complete",
		CPD:       newCPD(h),
	}, serviceHeaders(h))
	if err != nil {
		return nil, err
	}
	if len(completeResp.M2) == 0 {
		if st := completeResp.Status; st != nil && st.ErrorMessage != "" {
			return nil, gsaerr.Server(st.ErrorCode, st.ErrorMessage)
		}
		return nil, gsaerr.Authentication("response has no M2")
	}
	if !client.VerifyM2(completeResp.M2) {
		return nil, gsaerr.Integrity(nil, "server proof M2 does not match")
	}
	if len(completeResp.SPD) == 0 {
		return nil, gsaerr.Protocol(nil, "response has no spd")
	}

	session, err := decryptSession(client.SessionKey(), completeResp.SPD)
	if err != nil {
		return nil, err
	}
	factor, err := secondFactorOf(completeResp.Status)
	if err != nil {
		return nil, err
	}
	return &attempt{session: session, factor: factor}, nil
}

func (r *initResponse) validate() error {
	if r.Protocol != ProtocolS2K && r.Protocol != ProtocolS2KFO {
		return gsaerr.Protocol(nil, "unsupported protocol %q selected by server", r.Protocol)
	}
	if len(r.Salt) == 0 || len(r.B) == 0 || r.Cookie == "" {
		return gsaerr.Protocol(nil, "init response is missing s, B or c")
	}
	if r.Iterations <= 0 {
		return gsaerr.Protocol(nil, "init response has iteration count %d", r.Iterations)
	}
	return nil
}

func secondFactorOf(st *Status) (SecondFactor, error) {
	if st == nil {
		return SecondFactorNone, nil
	}
	switch st.AuthURL {
	case "":
		return SecondFactorNone, nil
	case AuthSecondary:
		return SecondFactorSMS, nil
	case AuthTrustedDeviceSecondary:
		return SecondFactorTrustedDevice, nil
	}
	return SecondFactorNone, gsaerr.Protocol(nil, "unrecognized authentication requirement %q", st.AuthURL)
}

// decryptSession opens the spd with key = HMAC(K, "extra data key:") and
// iv = HMAC(K, "extra data iv:")[:16].
func decryptSession(k, spd []byte) (*SessionPackage, error) {
	key := gsacrypto.HMACSHA256(k, []byte("extra data key:"))
	iv := gsacrypto.HMACSHA256(k, []byte("extra data iv:"))[:16]
	plaintext, err := gsacrypto.DecryptCBC(key, iv, spd)
	if err != nil {
		return nil, gsaerr.Protocol(err, "decrypt session payload")
	}
	var session SessionPackage
	if err := unmarshalFragment(plaintext, &session); err != nil {
		return nil, gsaerr.Protocol(err, "parse session payload")
	}
	if session.Adsid == "" || session.GsIdmsToken == "" {
		return nil, gsaerr.Protocol(nil, "session payload has no adsid or GsIdmsToken")
	}
	return &session, nil
}
