package devportal

import (
	"strings"
	"time"

	"gitee.com/kxapp/kxapp-common/errorz"
	"github.com/google/uuid"
)

type Team struct {
	TeamId      string `plist:"teamId"`
	Name        string `plist:"name"`
	Status      string `plist:"status"`
	Type        string `plist:"type"`
	Memberships []struct {
		MembershipProductId string `plist:"membershipProductId"`
		Name                string `plist:"name"`
		Platform            string `plist:"platform"`
		Status              string `plist:"status"`
	} `plist:"memberships"`
}

// XcodeFreeOnly is true when every membership is the free fp22 product.
func (t Team) XcodeFreeOnly() bool {
	for _, m := range t.Memberships {
		if m.MembershipProductId != "fp22" {
			return false
		}
	}
	return true
}

type Developer struct {
	DeveloperId string `plist:"developerId"`
	PersonId    int    `plist:"personId"`
	FirstName   string `plist:"firstName"`
	LastName    string `plist:"lastName"`
	Email       string `plist:"email"`
}

type Device struct {
	DeviceId     string `plist:"deviceId"`
	Name         string `plist:"name"`
	DeviceNumber string `plist:"deviceNumber"`
	DeviceClass  string `plist:"deviceClass"`
	Status       string `plist:"status"`
}

type Certificate struct {
	Name          string `plist:"name"`
	CertificateId string `plist:"certificateId"`
	SerialNumber  string `plist:"serialNumber"`
	MachineName   string `plist:"machineName"`
	MachineId     string `plist:"machineId"`
	CertContent   []byte `plist:"certContent"`
}

type AppID struct {
	AppIdId        string         `plist:"appIdId"`
	Identifier     string         `plist:"identifier"`
	Name           string         `plist:"name"`
	Features       map[string]any `plist:"features"`
	ExpirationDate time.Time      `plist:"expirationDate"`
}

type AppIDList struct {
	AppIDs            []AppID `plist:"appIds"`
	MaxQuantity       int     `plist:"maxQuantity"`
	AvailableQuantity int     `plist:"availableQuantity"`
}

type ApplicationGroup struct {
	ApplicationGroup string `plist:"applicationGroup"`
	Name             string `plist:"name"`
	Identifier       string `plist:"identifier"`
}

type ProvisioningProfile struct {
	ProvisioningProfileId string `plist:"provisioningProfileId"`
	Name                  string `plist:"name"`
	EncodedProfile        []byte `plist:"encodedProfile"`
}

// ListTeams returns the teams of the account; the first successful answer is cached.
func (c *Client) ListTeams() ([]Team, error) {
	if c.teams != nil {
		return c.teams, nil
	}
	data, err := c.postAction(DeviceAny, "listTeams", nil)
	if err != nil {
		return nil, err
	}
	teams, err := field[[]Team](data, "listTeams", "teams")
	if err != nil {
		return nil, err
	}
	c.teams = *teams
	return c.teams, nil
}

// Team returns the first team of the account.
func (c *Client) Team() (*Team, error) {
	teams, err := c.ListTeams()
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, &errorz.StatusError{Status: errorz.StatusParseDataError, Body: "no developer teams found"}
	}
	return &teams[0], nil
}

func (c *Client) ViewDeveloper() (*Developer, error) {
	data, err := c.postAction(DeviceAny, "viewDeveloper", nil)
	if err != nil {
		return nil, err
	}
	return field[Developer](data, "viewDeveloper", "developer")
}

func (c *Client) ListDevices(deviceType DeviceType, teamID string) ([]Device, error) {
	data, err := c.postAction(deviceType, "listDevices", map[string]any{"teamId": teamID})
	if err != nil {
		return nil, err
	}
	devices, err := field[[]Device](data, "listDevices", "devices")
	if err != nil {
		return nil, err
	}
	return *devices, nil
}

func (c *Client) AddDevice(deviceType DeviceType, teamID, name, udid string) (*Device, error) {
	data, err := c.postAction(deviceType, "addDevice", map[string]any{"teamId": teamID, "name": name, "deviceNumber": udid})
	if err != nil {
		return nil, err
	}
	return field[Device](data, "addDevice", "device")
}

func (c *Client) ListDevelopmentCerts(deviceType DeviceType, teamID string) ([]Certificate, error) {
	data, err := c.postAction(deviceType, "listAllDevelopmentCerts", map[string]any{"teamId": teamID})
	if err != nil {
		return nil, err
	}
	certs, err := field[[]Certificate](data, "listAllDevelopmentCerts", "certificates")
	if err != nil {
		return nil, err
	}
	return *certs, nil
}

func (c *Client) RevokeDevelopmentCert(deviceType DeviceType, teamID, serialNumber string) error {
	_, err := c.postAction(deviceType, "revokeDevelopmentCert", map[string]any{"teamId": teamID, "serialNumber": serialNumber})
	return err
}

// SubmitDevelopmentCSR returns the certRequestId of the new certificate.
func (c *Client) SubmitDevelopmentCSR(deviceType DeviceType, teamID, csr, machineName string) (string, error) {
	data, err := c.postAction(deviceType, "submitDevelopmentCSR", map[string]any{
		"teamId":      teamID,
		"csrContent":  csr,
		"machineId":   strings.ToUpper(uuid.New().String()),
		"machineName": machineName,
	})
	if err != nil {
		return "", err
	}
	req, err := field[struct {
		CertRequestId string `plist:"certRequestId"`
	}](data, "submitDevelopmentCSR", "certRequest")
	if err != nil {
		return "", err
	}
	return req.CertRequestId, nil
}

func (c *Client) ListAppIDs(deviceType DeviceType, teamID string) (*AppIDList, error) {
	data, err := c.postAction(deviceType, "listAppIds", map[string]any{"teamId": teamID})
	if err != nil {
		return nil, err
	}
	if _, ok := data["appIds"]; !ok {
		return nil, errorz.NewParseDataError(errMissing("listAppIds", "appIds"))
	}
	var list AppIDList
	if err := remarshal(data, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) AddAppID(deviceType DeviceType, teamID, name, identifier string) error {
	_, err := c.postAction(deviceType, "addAppId", map[string]any{"teamId": teamID, "name": name, "identifier": identifier})
	return err
}

func (c *Client) DeleteAppID(deviceType DeviceType, teamID, appIdId string) error {
	_, err := c.postAction(deviceType, "deleteAppId", map[string]any{"teamId": teamID, "appIdId": appIdId})
	return err
}

func (c *Client) ListApplicationGroups(deviceType DeviceType, teamID string) ([]ApplicationGroup, error) {
	data, err := c.postAction(deviceType, "listApplicationGroups", map[string]any{"teamId": teamID})
	if err != nil {
		return nil, err
	}
	groups, err := field[[]ApplicationGroup](data, "listApplicationGroups", "applicationGroupList")
	if err != nil {
		return nil, err
	}
	return *groups, nil
}

func (c *Client) AddApplicationGroup(deviceType DeviceType, teamID, identifier, name string) (*ApplicationGroup, error) {
	data, err := c.postAction(deviceType, "addApplicationGroup", map[string]any{"teamId": teamID, "name": name, "identifier": identifier})
	if err != nil {
		return nil, err
	}
	return field[ApplicationGroup](data, "addApplicationGroup", "applicationGroup")
}

func (c *Client) DownloadTeamProvisioningProfile(deviceType DeviceType, teamID, appIdId string) (*ProvisioningProfile, error) {
	data, err := c.postAction(deviceType, "downloadTeamProvisioningProfile", map[string]any{"teamId": teamID, "appIdId": appIdId})
	if err != nil {
		return nil, err
	}
	return field[ProvisioningProfile](data, "downloadTeamProvisioningProfile", "provisioningProfile")
}
