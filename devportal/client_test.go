package devportal

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"gitee.com/kxapp/kxapp-common/errorz"
	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsa"
	"github.com/appuploader/grandslam/gsa/gsatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

type fakeSender struct {
	requests []account.Request
	replies  []*account.Response
}

func (f *fakeSender) Send(req account.Request) (*account.Response, error) {
	f.requests = append(f.requests, req)
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func reply(data map[string]any) *account.Response {
	return &account.Response{Status: http.StatusOK, Data: data}
}

func TestActionEnvelope(t *testing.T) {
	f := &fakeSender{replies: []*account.Response{reply(map[string]any{
		"resultCode": uint64(0),
		"devices":    []any{map[string]any{"deviceId": "D1", "name": "iPhone", "deviceNumber": "00008101-0001"}},
	})}}
	c := NewClient(f, "https://portal.test/")

	devices, err := c.ListDevices(DeviceIOS, "TEAM1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, Device{DeviceId: "D1", Name: "iPhone", DeviceNumber: "00008101-0001"}, devices[0])

	req := f.requests[0]
	assert.Equal(t, "https://portal.test/services/QH65B2/ios/listDevices.action?clientId=XABBG36SBA", req.URL)
	assert.Equal(t, account.Structured, req.Kind)
	assert.Equal(t, gsa.AppIDXcode, req.AppName)
	assert.Equal(t, gsa.XcodeVersion, req.Headers["X-Xcode-Version"])
	body := req.Body.(map[string]any)
	assert.Equal(t, "TEAM1", body["teamId"])
	assert.Equal(t, ClientID, body["clientId"])
	assert.Equal(t, ProtocolVersion, body["protocolVersion"])
	assert.Equal(t, []string{"en_US"}, body["userLocale"])
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`), body["requestId"])
}

func TestActionResultCode(t *testing.T) {
	f := &fakeSender{replies: []*account.Response{
		reply(map[string]any{"resultCode": uint64(35), "userString": "Invalid team"}),
		reply(map[string]any{"resultCode": uint64(9401), "resultString": "Device limit"}),
		reply(map[string]any{"resultCode": uint64(1100), "resultString": "session expired"}),
	}}
	c := NewClient(f, "")

	_, err := c.ListDevices(DeviceAny, "T")
	var se *errorz.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 35, se.Status)
	assert.Equal(t, "Invalid team", se.Body)

	_, err = c.AddDevice(DeviceAny, "T", "n", "u")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Device limit", se.Body)

	err = c.RevokeDevelopmentCert(DeviceAny, "T", "serial")
	require.Error(t, err)
	assert.Equal(t, DefaultHost+"/services/QH65B2/revokeDevelopmentCert.action?clientId=XABBG36SBA", f.requests[2].URL)
}

func TestMissingField(t *testing.T) {
	f := &fakeSender{replies: []*account.Response{reply(map[string]any{"resultCode": uint64(0)})}}
	_, err := NewClient(f, "").ListApplicationGroups(DeviceAny, "T")
	assert.ErrorContains(t, err, "applicationGroupList")
}

func TestListTeamsIsCached(t *testing.T) {
	f := &fakeSender{replies: []*account.Response{reply(map[string]any{
		"resultCode": uint64(0),
		"teams": []any{map[string]any{
			"teamId": "T1", "name": "Personal", "type": "Individual",
			"memberships": []any{map[string]any{"membershipProductId": "fp22"}},
		}},
	})}}
	c := NewClient(f, "")

	teams, err := c.ListTeams()
	require.NoError(t, err)
	team, err := c.Team()
	require.NoError(t, err)
	assert.Equal(t, teams[0], *team)
	assert.Equal(t, "T1", team.TeamId)
	assert.True(t, team.XcodeFreeOnly())
	assert.Len(t, f.requests, 1)
}

func TestListAppIDs(t *testing.T) {
	expires := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeSender{replies: []*account.Response{reply(map[string]any{
		"resultCode":        uint64(0),
		"maxQuantity":       uint64(10),
		"availableQuantity": uint64(7),
		"appIds": []any{map[string]any{
			"appIdId": "A1", "identifier": "com.example.app", "name": "App",
			"features": map[string]any{"push": true}, "expirationDate": expires,
		}},
	})}}
	list, err := NewClient(f, "").ListAppIDs(DeviceIOS, "T")
	require.NoError(t, err)
	assert.Equal(t, 10, list.MaxQuantity)
	assert.Equal(t, 7, list.AvailableQuantity)
	require.Len(t, list.AppIDs, 1)
	assert.Equal(t, "com.example.app", list.AppIDs[0].Identifier)
	assert.Equal(t, true, list.AppIDs[0].Features["push"])
	assert.True(t, expires.Equal(list.AppIDs[0].ExpirationDate))
}

func TestV1MethodOverride(t *testing.T) {
	f := &fakeSender{replies: []*account.Response{
		{Status: http.StatusOK, Data: map[string]any{
			"data": map[string]any{"id": "A1"},
			"included": []any{
				map[string]any{"type": "capabilities", "id": "APP_GROUPS", "attributes": map[string]any{
					"entitlements": []any{map[string]any{
						"key":    "APPLICATION_GROUPS_ENTITLEMENT",
						"values": []any{map[string]any{"value": "group.com.example"}},
					}},
				}},
				map[string]any{"type": "capabilities", "id": "HEALTHKIT"},
				map[string]any{"type": "appGroups", "id": "G1"},
			},
		}},
		{Status: http.StatusConflict, Data: map[string]any{
			"errors": []any{map[string]any{"title": "Conflict", "detail": "already enabled", "code": "ENTITY_ERROR"}},
		}},
	}}
	c := NewClient(f, "")

	caps, err := c.BundleCapabilities("T", "A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", caps.AppIdId())
	assert.Equal(t, []Capability{CapabilityAppGroups, CapabilityHealthKit}, caps.Enabled())
	assert.Equal(t, []string{"group.com.example"}, caps.AppGroups())
	assert.Equal(t, http.MethodGet, f.requests[0].Headers["X-HTTP-Method-Override"])
	assert.Equal(t, account.JSON, f.requests[0].Kind)
	assert.Equal(t, DefaultHost+"/services/v1/bundleIds/A1", f.requests[0].URL)

	err = c.SetBundleCapability("T", AppID{AppIdId: "A1", Identifier: "com.example", Name: "Ex"}, CapabilityHealthKit, true)
	assert.EqualError(t, err, (&errorz.StatusError{Status: http.StatusConflict, Body: "developer request failed [Conflict: already enabled (ENTITY_ERROR)]"}).Error())
	assert.Equal(t, http.MethodPatch, f.requests[1].Method)
	assert.NotContains(t, f.requests[1].Headers, "X-HTTP-Method-Override")
}

// A full round trip: GSA login against the fake service, then a portal call authorized with
// the issued app token.
func TestListTeamsThroughAccount(t *testing.T) {
	srv := gsatest.New(t, gsatest.Config{Username: "dev@example.com", Password: "pw", Protocol: gsa.ProtocolS2KFO})
	acct := account.New("dev@example.com", anisette.NewIdentity(nil), account.Options{GSAHost: srv.URL, AnisetteURL: srv.URL})
	require.NoError(t, acct.Login("pw", nil))

	var gsToken string
	var requestID any
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gsToken = r.Header.Get("X-Apple-GS-Token")
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		plist.Unmarshal(raw, &body)
		requestID = body["requestId"]
		out, _ := plist.Marshal(map[string]any{
			"resultCode": 0,
			"teams":      []any{map[string]any{"teamId": "T1", "name": "Personal"}},
		}, plist.XMLFormat)
		w.Write(out)
	}))
	defer portal.Close()

	teams, err := NewClient(acct, portal.URL).ListTeams()
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "T1", teams[0].TeamId)
	assert.NotEmpty(t, requestID)

	token, err := acct.AppToken(gsa.AppIDXcode)
	require.NoError(t, err)
	assert.Equal(t, token.Token, gsToken)
}
