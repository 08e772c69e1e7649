// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

import (
	"encoding/base64"
	"encoding/json"
)

// authorizationState is the wire form carried inside the OAuth state
// parameter for shared clients.
type authorizationState struct {
	CSRF  string `json:"csrf"`
	OrgID string `json:"org_id,omitempty"`
}

// DecodedState is the result of parsing an incoming state parameter.
//
// Incoming state can originate from a client that never saw this proxy's
// encoding (a plain CSRF token) or from a previous redirect through the
// proxy (base64 JSON). Encoded reports which form was found; when false,
// CSRF holds the raw input unchanged and OrgID is empty.
type DecodedState struct {
	CSRF    string
	OrgID   string
	Encoded bool
}

// EncodeState packs a CSRF value and organization id into the state
// parameter as base64url(JSON).
func EncodeState(csrf, orgID string) string {
	payload, _ := json.Marshal(authorizationState{CSRF: csrf, OrgID: orgID})
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeState parses an incoming state parameter. It never fails: inputs
// that are not this proxy's encoding are returned opaque, so foreign state
// values round-trip through the flow untouched.
func DecodeState(raw string) DecodedState {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		// Tolerate padded or standard-alphabet encodings from older clients.
		decoded, err = base64.StdEncoding.DecodeString(raw)
	}
	if err != nil {
		return DecodedState{CSRF: raw}
	}

	var st authorizationState
	if json.Unmarshal(decoded, &st) != nil || st.CSRF == "" {
		// Valid base64 but not our payload: treat the whole input as an
		// opaque CSRF value.
		return DecodedState{CSRF: raw}
	}

	return DecodedState{CSRF: st.CSRF, OrgID: st.OrgID, Encoded: true}
}
