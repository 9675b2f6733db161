package gsa

import (
	"github.com/appuploader/grandslam/anisette"
)

const (
	ProtocolS2K   = "s2k"
	ProtocolS2KFO = "s2k_fo"
)

const (
	ErrorCodeInvalidPassword = -20101
	ErrorCodeInvalidAccount  = -20751
)

// status values in Status.au naming a second factor
const (
	AuthSecondary              = "secondaryAuth"
	AuthTrustedDeviceSecondary = "trustedDeviceSecondaryAuth"
)

// ClientProvidedData is the cpd block every GSA request carries: fixed flags plus the
// anisette headers except the client info.
type ClientProvidedData struct {
	Bootstrap    bool   `plist:"bootstrap"`
	Icscrec      bool   `plist:"icscrec"`
	PBE          bool   `plist:"pbe"`
	PRKGen       bool   `plist:"prkgen"`
	SVCT         string `plist:"svct"`
	Loc          string `plist:"loc"`
	ClientTime   string `plist:"X-Apple-I-Client-Time"`
	MD           string `plist:"X-Apple-I-MD"`
	MDLU         string `plist:"X-Apple-I-MD-LU"`
	MDM          string `plist:"X-Apple-I-MD-M"`
	RInfo        string `plist:"X-Apple-I-MD-RINFO"`
	SerialNumber string `plist:"X-Apple-I-SRL-NO"`
	TimeZone     string `plist:"X-Apple-I-TimeZone"`
	Locale       string `plist:"X-Apple-Locale"`
	DeviceID     string `plist:"X-Mme-Device-Id"`
}

func newCPD(h anisette.HeaderSet) ClientProvidedData {
	return ClientProvidedData{
		Bootstrap:    true,
		Icscrec:      true,
		PBE:          false,
		PRKGen:       true,
		SVCT:         "iCloud",
		Loc:          h.Locale,
		ClientTime:   h.ClientTime,
		MD:           h.MachineData,
		MDLU:         h.LocalUserID,
		MDM:          h.MachineInfo,
		RInfo:        h.RoutingInfo,
		SerialNumber: h.SerialNumber,
		TimeZone:     h.TimeZone,
		Locale:       h.Locale,
		DeviceID:     h.DeviceID,
	}
}

type requestHeader struct {
	Version string `plist:"Version"`
}

// requestEnvelope wraps one request. Request must hold a value, not a pointer.
type requestEnvelope struct {
	Header  requestHeader `plist:"Header"`
	Request any           `plist:"Request"`
}

// Status is the Status dict of every GSA response.
type Status struct {
	HTTPStatus   int    `plist:"hsc"`
	ErrorCode    int    `plist:"ec"`
	ErrorMessage string `plist:"em"`
	ErrorDesc    string `plist:"ed"`
	AuthURL      string `plist:"au"` //names the second factor when one is required
	RSH          bool   `plist:"rsh"`
}

type initRequest struct {
	A2k       []byte             `plist:"A2k"`
	Protocols []string           `plist:"ps"`
	UserName  string             `plist:"u"`
	Operation string             `plist:"o"`
	CPD       ClientProvidedData `plist:"cpd"`
}

type initResponse struct {
	Status     *Status `plist:"Status"`
	Salt       []byte  `plist:"s"`
	Iterations int     `plist:"i"`
	Protocol   string  `plist:"sp"`
	B          []byte  `plist:"B"`
	Cookie     string  `plist:"c"`
}

type completeRequest struct {
	M1        []byte             `plist:"M1"`
	Cookie    string             `plist:"c"`
	UserName  string             `plist:"u"`
	Operation string             `plist:"o"`
	CPD       ClientProvidedData `plist:"cpd"`
}

type completeResponse struct {
	Status *Status `plist:"Status"`
	M2     []byte  `plist:"M2"`
	SPD    []byte  `plist:"spd"` //session payload, AES-CBC under keys derived from K
	NP     []byte  `plist:"np"`
}

type appTokensRequest struct {
	Apps      []string           `plist:"app"`
	Cookie    []byte             `plist:"c"`
	Operation string             `plist:"o"`
	Token     string             `plist:"t"`
	Adsid     string             `plist:"u"`
	Checksum  []byte             `plist:"checksum"`
	CPD       ClientProvidedData `plist:"cpd"`
}

type appTokensResponse struct {
	Status         *Status `plist:"Status"`
	EncryptedToken []byte  `plist:"et"`
}

type appTokensPayload struct {
	StatusCode int                 `plist:"status-code"`
	Tokens     map[string]AppToken `plist:"t"`
}

func (r *initResponse) status() *Status      { return r.Status }
func (r *completeResponse) status() *Status  { return r.Status }
func (r *appTokensResponse) status() *Status { return r.Status }
