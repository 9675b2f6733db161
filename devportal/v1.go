package devportal

import (
	"fmt"
	"net/http"
	"strings"

	"gitee.com/kxapp/kxapp-common/errorz"
	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/gsa"
)

type Capability string

const (
	CapabilityIncreasedMemoryLimit Capability = "INCREASED_MEMORY_LIMIT"
	CapabilityHealthKit            Capability = "HEALTHKIT"
	CapabilityAppGroups            Capability = "APP_GROUPS"
	CapabilityHomeKit              Capability = "HOMEKIT"
	CapabilityGameCenter           Capability = "GAME_CENTER"
	CapabilityAutofillCredential   Capability = "AUTOFILL_CREDENTIAL_PROVIDER"
	CapabilityWirelessAccessory    Capability = "WIRELESS_ACCESSORY_CONFIGURATION"
)

/*
sendV1 sends a JSON:API request to /services/v1. Bodies carrying urlEncodedQueryParams are
reads tunnelled through POST and get X-HTTP-Method-Override: GET.
*/
func (c *Client) sendV1(path string, body map[string]any, method string) (map[string]any, error) {
	headers := map[string]string{"X-Xcode-Version": gsa.XcodeVersion}
	if _, ok := body["urlEncodedQueryParams"]; ok {
		headers["X-HTTP-Method-Override"] = http.MethodGet
	}
	response, err := c.sender.Send(account.Request{
		URL:     c.host + "/services/v1/" + strings.TrimLeft(path, "/"),
		Method:  method,
		Body:    body,
		Headers: headers,
		Kind:    account.JSON,
		AppName: gsa.AppIDXcode,
	})
	if err != nil {
		return nil, err
	}
	if _, ok := response.Data["data"]; ok {
		return response.Data, nil
	}
	if list, ok := response.Data["errors"].([]any); ok && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			e, _ := item.(map[string]any)
			parts = append(parts, fmt.Sprintf("[%v: %v (%v)]", e["title"], e["detail"], e["code"]))
		}
		return nil, &errorz.StatusError{Status: response.Status, Body: "developer request failed " + strings.Join(parts, " ")}
	}
	return nil, &errorz.StatusError{Status: response.Status, Body: "developer request failed with unknown error"}
}

// BundleCapabilities is the bundleIds document with its included capabilities.
type BundleCapabilities struct {
	doc map[string]any
}

func (b *BundleCapabilities) AppIdId() string {
	data, _ := b.doc["data"].(map[string]any)
	id, _ := data["id"].(string)
	return id
}

func (b *BundleCapabilities) capabilities() []map[string]any {
	included, _ := b.doc["included"].([]any)
	var out []map[string]any
	for _, item := range included {
		if m, ok := item.(map[string]any); ok && m["type"] == "capabilities" {
			out = append(out, m)
		}
	}
	return out
}

func (b *BundleCapabilities) Enabled() []Capability {
	var out []Capability
	for _, m := range b.capabilities() {
		if id, ok := m["id"].(string); ok {
			out = append(out, Capability(id))
		}
	}
	return out
}

// AppGroups lists the group identifiers of the APPLICATION_GROUPS_ENTITLEMENT.
func (b *BundleCapabilities) AppGroups() []string {
	for _, m := range b.capabilities() {
		if m["id"] != string(CapabilityAppGroups) {
			continue
		}
		attributes, _ := m["attributes"].(map[string]any)
		entitlements, _ := attributes["entitlements"].([]any)
		if len(entitlements) == 0 {
			return nil
		}
		entitlement, _ := entitlements[0].(map[string]any)
		if entitlement["key"] != "APPLICATION_GROUPS_ENTITLEMENT" {
			return nil
		}
		values, _ := entitlement["values"].([]any)
		var out []string
		for _, v := range values {
			if vm, ok := v.(map[string]any); ok {
				if s, ok := vm["value"].(string); ok {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

func (c *Client) BundleCapabilities(teamID, appIdId string) (*BundleCapabilities, error) {
	query := "teamId=" + teamID + "&include=bundleIdCapabilities.capability,bundleIdCapabilities.appGroups," +
		"bundleIdCapabilities.cloudContainers,bundleIdCapabilities.merchantIds,bundleIdCapabilities.associatedBundleIds"
	doc, err := c.sendV1("bundleIds/"+appIdId, map[string]any{"urlEncodedQueryParams": query}, http.MethodPost)
	if err != nil {
		return nil, err
	}
	return &BundleCapabilities{doc: doc}, nil
}

func (c *Client) SetBundleCapability(teamID string, app AppID, capability Capability, enabled bool) error {
	body := map[string]any{
		"data": map[string]any{
			"type": "bundleIds",
			"id":   app.AppIdId,
			"attributes": map[string]any{
				"name":                            app.Name,
				"hasExclusiveManagedCapabilities": false,
				"bundleType":                      "bundle",
				"teamId":                          teamID,
				"identifier":                      app.Identifier,
				"seedId":                          teamID,
			},
			"relationships": map[string]any{
				"bundleIdCapabilities": map[string]any{
					"data": []any{map[string]any{
						"type":       "bundleIdCapabilities",
						"attributes": map[string]any{"enabled": enabled, "settings": []any{}},
						"relationships": map[string]any{
							"capability": map[string]any{"data": map[string]any{"type": "capabilities", "id": string(capability)}},
						},
					}},
				},
			},
		},
	}
	_, err := c.sendV1("bundleIds/"+app.AppIdId, body, http.MethodPatch)
	return err
}
