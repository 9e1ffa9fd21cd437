package broadcast

import (
	"strings"

	"github.com/spec-kit/chatpay-service/internal/domain"
)

// ChannelScheme names the live pub/sub topic for one user identity. Every
// message addressed to a user flows through that user's own channel, so a
// customer device needs exactly one subscription.
type ChannelScheme struct {
	prefix string
}

// NewChannelScheme builds a scheme with the configured prefix (e.g. "chat").
func NewChannelScheme(prefix string) ChannelScheme {
	if prefix == "" {
		prefix = "chat"
	}
	return ChannelScheme{prefix: prefix}
}

// ChannelFor returns the channel carrying messages addressed to userID.
func (s ChannelScheme) ChannelFor(userID string) string {
	return s.prefix + "." + userID
}

// OwnerID extracts the user identity a channel belongs to.
func (s ChannelScheme) OwnerID(channel string) (string, bool) {
	rest, found := strings.CutPrefix(channel, s.prefix+".")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

// Authorizer decides which identities may subscribe to which channel:
// everyone to their own, the admin to any.
type Authorizer struct {
	scheme ChannelScheme
}

// NewAuthorizer builds an authorizer over the given scheme.
func NewAuthorizer(scheme ChannelScheme) *Authorizer {
	return &Authorizer{scheme: scheme}
}

// Authorize reports whether user may subscribe to channel. Denial is enforced
// at the transport handshake, never as an application error payload.
func (a *Authorizer) Authorize(user *domain.User, channel string) bool {
	if user == nil {
		return false
	}
	ownerID, ok := a.scheme.OwnerID(channel)
	if !ok {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	return ownerID == user.ID
}
