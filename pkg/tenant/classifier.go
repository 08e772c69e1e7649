// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant

// ClientKind classifies an OAuth client identifier.
type ClientKind int

const (
	// KindEphemeral marks a client identifier unique to one session,
	// safe to use as a store key for tenant data.
	KindEphemeral ClientKind = iota

	// KindShared marks a pre-registered client identifier reused by many
	// independent end users (for example a distributed CLI). Shared
	// identifiers must never key server-side tenant state, because one
	// user's organization choice would leak to every other user of the
	// same client.
	KindShared
)

// String returns the kind name for logging.
func (k ClientKind) String() string {
	if k == KindShared {
		return "shared"
	}
	return "ephemeral"
}

// Classifier maps client identifiers to their kind using an allow-list of
// known shared clients built once at startup. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	shared map[string]struct{}
}

// NewClassifier builds a classifier from the configured shared-client ids.
func NewClassifier(sharedClientIDs []string) *Classifier {
	shared := make(map[string]struct{}, len(sharedClientIDs))
	for _, id := range sharedClientIDs {
		if id != "" {
			shared[id] = struct{}{}
		}
	}
	return &Classifier{shared: shared}
}

// Classify returns the kind for clientID. Unknown identifiers default to
// KindEphemeral, the safer choice: it never skips mapping persistence.
func (c *Classifier) Classify(clientID string) ClientKind {
	if _, ok := c.shared[clientID]; ok {
		return KindShared
	}
	return KindEphemeral
}
