package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Headers set by the identity proxy in front of the service. The user id
// header is trusted as-is; the guest id is chosen by the client.
const (
	HeaderUserID  = "X-User-ID"
	HeaderGuestID = "X-Guest-ID"

	defaultGuestID = "guest_user"

	ctxIdentity = "identity"
	ctxUserID   = "userID"
)

// Identity is the caller of a request: a signed-in user or a guest.
type Identity struct {
	UserID  string
	GuestID string
}

func (id Identity) SignedIn() bool { return id.UserID != "" }

// Owner is the key a portfolio or event stream is filed under.
func (id Identity) Owner() string {
	if id.SignedIn() {
		return "user:" + id.UserID
	}
	return "guest:" + id.GuestID
}

// authGate resolves the caller identity of every request.
func authGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity{
			UserID:  strings.TrimSpace(c.GetHeader(HeaderUserID)),
			GuestID: strings.TrimSpace(c.GetHeader(HeaderGuestID)),
		}
		if id.GuestID == "" {
			id.GuestID = defaultGuestID
		}
		c.Set(ctxIdentity, id)
		if id.SignedIn() {
			c.Set(ctxUserID, id.UserID)
		}
		c.Next()
	}
}

// requireUser rejects guests.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityOf(c).SignedIn() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
			return
		}
		c.Next()
	}
}

func identityOf(c *gin.Context) Identity {
	if v, ok := c.Get(ctxIdentity); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{GuestID: defaultGuestID}
}
