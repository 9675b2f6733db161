package anisette

import "time"

const ClientTimeFormat = "2006-01-02T15:04:05Z"

const (
	HeaderClientTime   = "X-Apple-I-Client-Time"
	HeaderMD           = "X-Apple-I-MD"
	HeaderMDLU         = "X-Apple-I-MD-LU"
	HeaderMDM          = "X-Apple-I-MD-M"
	HeaderMDRINFO      = "X-Apple-I-MD-RINFO"
	HeaderSerialNumber = "X-Apple-I-SRL-NO"
	HeaderTimeZone     = "X-Apple-I-TimeZone"
	HeaderLocale       = "X-Apple-Locale"
	HeaderClientInfo   = "X-MMe-Client-Info"
	HeaderDeviceID     = "X-Mme-Device-Id"
)

// HeaderSet is one generation of anisette headers. Everything but ClientTime is stable for
// the lifetime of a cache window.
type HeaderSet struct {
	ClientTime   string
	MachineData  string //X-Apple-I-MD, one time password
	LocalUserID  string
	MachineInfo  string //X-Apple-I-MD-M
	RoutingInfo  string
	SerialNumber string
	TimeZone     string
	Locale       string
	ClientInfo   string
	DeviceID     string
}

func clientTime(t time.Time) string {
	return t.UTC().Format(ClientTimeFormat)
}

// AddTo writes every header of the set into headers, replacing existing keys.
func (h HeaderSet) AddTo(headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string, 10)
	}
	headers[HeaderClientTime] = h.ClientTime
	headers[HeaderMD] = h.MachineData
	headers[HeaderMDLU] = h.LocalUserID
	headers[HeaderMDM] = h.MachineInfo
	headers[HeaderMDRINFO] = h.RoutingInfo
	headers[HeaderSerialNumber] = h.SerialNumber
	headers[HeaderTimeZone] = h.TimeZone
	headers[HeaderLocale] = h.Locale
	headers[HeaderClientInfo] = h.ClientInfo
	headers[HeaderDeviceID] = h.DeviceID
	return headers
}

func (h HeaderSet) Map() map[string]string {
	return h.AddTo(nil)
}
