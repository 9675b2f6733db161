// Package gsatest runs an in-process GSA endpoint backed by a real SRP verifier, for tests
// of code that logs in and requests app tokens.
package gsatest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appuploader/grandslam/gsacrypto"
	"github.com/appuploader/grandslam/srp"
	jsoniter "github.com/json-iterator/go"
	"howett.net/plist"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	Code       = "123456"
	Adsid      = "000123-05-7f3a2b1c-aaaa-bbbb-cccc-0123456789ab"
	IdmsToken  = "gs-idms-token"
	Cookie     = "correlation-cookie"
	ClientInfo = "<MacBookPro13,2> <macOS;13.1;22C65> <com.apple.AuthKit/1 (com.apple.dt.Xcode/3594.4.19)>"
)

// Config describes the account the fake serves.
type Config struct {
	Username   string
	Password   string
	Protocol   string //s2k or s2k_fo
	Iterations int
	// SecondFactor is the au value returned until a code has been accepted
	SecondFactor string
	// FlipM2 corrupts one bit of every M2
	FlipM2 bool
	// BadEnvelope replaces the XYZ tag of token envelopes
	BadEnvelope bool
	// TamperEnvelope flips a ciphertext bit of token envelopes
	TamperEnvelope bool
	// TokenError, when non zero, is the ec of every apptokens response
	TokenError int
	// ExtraApps are issued alongside every requested app
	ExtraApps []string
	TokenTTL  time.Duration
}

type Server struct {
	*httptest.Server
	cfg Config
	t   testing.TB

	salt []byte
	sk   []byte

	mu       sync.Mutex
	pending  *srp.Server
	pendingA []byte
	verified bool
	headers  map[string]http.Header

	Inits         atomic.Int32
	Completes     atomic.Int32
	TokenRequests atomic.Int32
	DevicePrompts atomic.Int32
	Validations   atomic.Int32
	SMSRequests   atomic.Int32
	SMSCodes      atomic.Int32

	// MaxInFlight is the highest number of handshakes seen between init and complete.
	MaxInFlight atomic.Int32
	inFlight    atomic.Int32
}

func New(t testing.TB, cfg Config) *Server {
	if cfg.Protocol == "" {
		cfg.Protocol = "s2k"
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 1000
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
	s := &Server{
		cfg:     cfg,
		t:       t,
		salt:    []byte("fake-gsa-salt-16"),
		sk:      bytes.Repeat([]byte{0x5a}, 32),
		headers: map[string]http.Header{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/grandslam/GsService2", s.service)
	mux.HandleFunc("/grandslam/GsService2/validate", s.validate)
	mux.HandleFunc("/auth/verify/trusteddevice", s.devicePrompt)
	mux.HandleFunc("/auth/verify/phone/", s.phone)
	mux.HandleFunc("/auth/verify/phone/securitycode", s.phoneCode)
	mux.HandleFunc("/v3/get_headers", s.anisetteHeaders)
	mux.HandleFunc("/v3/client_info", s.anisetteClientInfo)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SessionKey is the sk placed in the session payload.
func (s *Server) SessionKey() []byte {
	return s.sk
}

// Headers returns the request headers last seen for an operation or path.
func (s *Server) Headers(key string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[key]
}

func (s *Server) record(key string, r *http.Request) {
	s.mu.Lock()
	s.headers[key] = r.Header.Clone()
	s.mu.Unlock()
}

func (s *Server) stretched() []byte {
	p := gsacrypto.SHA256([]byte(s.cfg.Password))
	if s.cfg.Protocol == "s2k_fo" {
		p = []byte(hex.EncodeToString(p))
	}
	return gsacrypto.PBKDF2(p, s.salt, s.cfg.Iterations, 32)
}

func (s *Server) service(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var envelope struct {
		Header  map[string]any `plist:"Header"`
		Request map[string]any `plist:"Request"`
	}
	if _, err := plist.Unmarshal(body, &envelope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if envelope.Header["Version"] != "1.0.1" {
		http.Error(w, "bad version", http.StatusBadRequest)
		return
	}
	req := envelope.Request
	op, _ := req["o"].(string)
	s.record(op, r)
	switch op {
	case "init":
		s.Inits.Add(1)
		s.enter()
		s.init(w, req)
	case "complete":
		s.Completes.Add(1)
		s.complete(w, req)
		s.inFlight.Add(-1)
	case "apptokens":
		s.TokenRequests.Add(1)
		s.appTokens(w, req)
	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
	}
}

func (s *Server) enter() {
	n := s.inFlight.Add(1)
	for {
		top := s.MaxInFlight.Load()
		if n <= top || s.MaxInFlight.CompareAndSwap(top, n) {
			return
		}
	}
}

func ok() map[string]any {
	return map[string]any{"hsc": 200, "ec": 0}
}

func failure(ec int, em string) map[string]any {
	return map[string]any{"hsc": 401, "ec": ec, "em": em}
}

func writeResponse(w http.ResponseWriter, response map[string]any) {
	data, err := plist.MarshalIndent(map[string]any{"Response": response}, plist.XMLFormat, "\t")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/x-xml-plist")
	w.Write(data)
}

func (s *Server) init(w http.ResponseWriter, req map[string]any) {
	if req["u"] != s.cfg.Username {
		writeResponse(w, map[string]any{"Status": failure(-20751, "This Apple ID does not exist.")})
		return
	}
	a, _ := req["A2k"].([]byte)
	if _, ok := req["cpd"].(map[string]any); !ok || len(a) == 0 {
		http.Error(w, "missing A2k or cpd", http.StatusBadRequest)
		return
	}
	server, err := srp.NewServer(srp.Group2048, s.salt, srp.Group2048.Verifier(s.salt, s.stretched()), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	s.pending = server
	s.pendingA = a
	s.mu.Unlock()
	writeResponse(w, map[string]any{
		"Status": ok(),
		"s":      s.salt,
		"i":      s.cfg.Iterations,
		"sp":     s.cfg.Protocol,
		"B":      server.PublicB(),
		"c":      Cookie,
	})
}

func (s *Server) complete(w http.ResponseWriter, req map[string]any) {
	s.mu.Lock()
	server, a := s.pending, s.pendingA
	s.pending, s.pendingA = nil, nil
	verified := s.verified
	s.mu.Unlock()
	if server == nil || req["c"] != Cookie {
		http.Error(w, "unknown cookie", http.StatusBadRequest)
		return
	}
	m1, _ := req["M1"].([]byte)
	m2, err := server.VerifyClient([]byte(s.cfg.Username), a, m1)
	if err != nil {
		writeResponse(w, map[string]any{"Status": failure(-20101, "Your Apple ID or password was entered incorrectly.")})
		return
	}
	if s.cfg.FlipM2 {
		m2[0] ^= 0x01
	}
	session, _ := plist.MarshalIndent(map[string]any{
		"adsid":        Adsid,
		"GsIdmsToken":  IdmsToken,
		"sk":           s.sk,
		"c":            []byte(Cookie),
		"acname":       s.cfg.Username,
		"primaryEmail": s.cfg.Username,
		"DsPrsId":      1234567,
		"fn":           "Test",
		"ln":           "User",
	}, plist.XMLFormat, "\t")
	k := server.SessionKey()
	spd := encryptCBC(s.t, gsacrypto.HMACSHA256(k, []byte("extra data key:")), gsacrypto.HMACSHA256(k, []byte("extra data iv:"))[:16], session)

	status := ok()
	if s.cfg.SecondFactor != "" && !verified {
		status["au"] = s.cfg.SecondFactor
		status["hsc"] = 409
	}
	writeResponse(w, map[string]any{"Status": status, "M2": m2, "spd": spd, "np": []byte("np")})
}

func (s *Server) appTokens(w http.ResponseWriter, req map[string]any) {
	if s.cfg.TokenError != 0 {
		writeResponse(w, map[string]any{"Status": failure(s.cfg.TokenError, "token issuance refused")})
		return
	}
	apps, _ := req["app"].([]any)
	if len(apps) != 1 {
		http.Error(w, "want one app", http.StatusBadRequest)
		return
	}
	app, _ := apps[0].(string)
	sum, _ := req["checksum"].([]byte)
	want := gsacrypto.HMACSHA256(s.sk, []byte("apptokens"+Adsid+app))
	if !bytes.Equal(sum, want) || req["t"] != IdmsToken || req["u"] != Adsid {
		writeResponse(w, map[string]any{"Status": failure(-22406, "checksum mismatch")})
		return
	}
	expiry := time.Now().Add(s.cfg.TokenTTL).UnixMilli()
	tokens := map[string]any{}
	for _, id := range append([]string{app}, s.cfg.ExtraApps...) {
		tokens[id] = map[string]any{
			"token":    TokenFor(id, int(s.TokenRequests.Load())),
			"expiry":   expiry,
			"duration": int(s.cfg.TokenTTL / time.Second),
		}
	}
	payload, _ := plist.MarshalIndent(map[string]any{"status-code": 200, "t": tokens}, plist.XMLFormat, "\t")
	writeResponse(w, map[string]any{"Status": ok(), "et": s.seal(fragment(payload))})
}

// TokenFor is the token issued for app on the nth apptokens request.
func TokenFor(app string, n int) string {
	return fmt.Sprintf("%s-token-%d", app, n)
}

func (s *Server) seal(plaintext []byte) []byte {
	iv := make([]byte, 16)
	rand.Read(iv)
	block, err := aes.NewCipher(s.sk)
	if err != nil {
		s.t.Fatal(err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		s.t.Fatal(err)
	}
	tag := []byte("XYZ")
	if s.cfg.BadEnvelope {
		tag = []byte("ABC")
	}
	out := append(append([]byte{}, tag...), iv...)
	out = append(out, gcm.Seal(nil, iv, plaintext, []byte("XYZ"))...)
	if s.cfg.TamperEnvelope {
		out[20] ^= 0x01
	}
	return out
}

// fragment strips the xml declaration and plist root, the shape GSA encrypts.
func fragment(doc []byte) []byte {
	text := string(doc)
	start := strings.Index(text, "<dict>")
	end := strings.LastIndex(text, "</dict>")
	return []byte(text[start : end+len("</dict>")])
}

func encryptCBC(t testing.TB, key, iv, plaintext []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func (s *Server) devicePrompt(w http.ResponseWriter, r *http.Request) {
	s.DevicePrompts.Add(1)
	s.record(r.URL.Path, r)
	if r.Method != http.MethodGet || !s.identityTokenOK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	s.Validations.Add(1)
	s.record(r.URL.Path, r)
	if !s.identityTokenOK(r) || r.Header.Get("security-code") != Code {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.markVerified()
	w.WriteHeader(http.StatusOK)
}

type phoneRequest struct {
	PhoneNumber struct {
		ID int `json:"id"`
	} `json:"phoneNumber"`
	Mode         string `json:"mode"`
	SecurityCode *struct {
		Code string `json:"code"`
	} `json:"securityCode"`
}

func (s *Server) readPhone(r *http.Request) (phoneRequest, bool) {
	var req phoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	return req, req.PhoneNumber.ID == 1 && req.Mode == "sms" && s.identityTokenOK(r)
}

func (s *Server) phone(w http.ResponseWriter, r *http.Request) {
	s.SMSRequests.Add(1)
	s.record(r.URL.Path, r)
	if _, ok := s.readPhone(r); !ok || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) phoneCode(w http.ResponseWriter, r *http.Request) {
	s.SMSCodes.Add(1)
	s.record(r.URL.Path, r)
	req, ok := s.readPhone(r)
	if !ok || req.SecurityCode == nil || req.SecurityCode.Code != Code {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.markVerified()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) identityTokenOK(r *http.Request) bool {
	return r.Header.Get("X-Apple-Identity-Token") == base64.StdEncoding.EncodeToString([]byte(Adsid+":"+IdmsToken))
}

func (s *Server) markVerified() {
	s.mu.Lock()
	s.verified = true
	s.mu.Unlock()
}

func (s *Server) anisetteHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"X-Apple-I-MD":       "AAAABQAAABA=",
		"X-Apple-I-MD-M":     "fake-machine-info",
		"X-Apple-I-MD-RINFO": 17106176,
	})
}

func (s *Server) anisetteClientInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"client_info": ClientInfo})
}
