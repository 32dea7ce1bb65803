// Package session resolves a client's session cookie to a user id by reading
// the session payload the authentication service stored in the shared cache.
//
// The gateway is not the signing authority for the cookie. A value is
// trusted when a live cache entry exists under it; the signature suffix is
// discarded without verification.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// signedPrefix marks a cookie value signed by the issuing service.
const signedPrefix = "s:"

// Token is a session id taken from a cookie issued by the authentication
// service. Holding a Token does not mean the session is live; Validate
// decides that.
type Token string

func (t Token) String() string { return string(t) }

// ParseCookie extracts the session Token from a raw Cookie header.
func ParseCookie(header, cookieName string) (Token, error) {
	if header == "" {
		return "", errs.ErrAuthentication.WrapMsg("no cookie header")
	}
	// Request.Cookie skips malformed pairs instead of failing the header.
	req := http.Request{Header: http.Header{"Cookie": {header}}}
	c, err := req.Cookie(cookieName)
	if err != nil {
		return "", errs.ErrAuthentication.WrapMsg("session cookie missing", "cookie", cookieName)
	}
	return tokenFromValue(c.Value)
}

func tokenFromValue(raw string) (Token, error) {
	v, err := url.QueryUnescape(raw)
	if err != nil {
		v = raw
	}
	v = strings.TrimPrefix(v, signedPrefix)
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return "", errs.ErrAuthentication.WrapMsg("empty session id")
	}
	return Token(v), nil
}

// Validator looks sessions up in the shared cache.
type Validator struct {
	rdb    redis.Cmdable
	prefix string
}

func NewValidator(rdb redis.Cmdable, prefix string) *Validator {
	return &Validator{rdb: rdb, prefix: prefix}
}

func (v *Validator) key(t Token) string { return v.prefix + string(t) }

// payload covers the shapes the authentication service has written over
// time: a top-level userId, a nested payload.userId, or passport.user.
type payload struct {
	UserID  json.RawMessage `json:"userId"`
	Payload *struct {
		UserID json.RawMessage `json:"userId"`
	} `json:"payload"`
	Passport *struct {
		User json.RawMessage `json:"user"`
	} `json:"passport"`
}

// Validate returns the user id bound to t. Every failure is an
// AUTHENTICATION_FAILED error; the caller drops the connection.
func (v *Validator) Validate(ctx context.Context, t Token) (string, error) {
	if t == "" {
		return "", errs.ErrAuthentication.WrapMsg("empty session id")
	}

	raw, err := v.rdb.Get(ctx, v.key(t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", errs.ErrAuthentication.WrapMsg("session not found")
	}
	if err != nil {
		logger.Error("[session] cache read failed", zap.Error(err))
		return "", errs.ErrAuthentication.WrapMsg("session store unavailable")
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", errs.ErrAuthentication.WrapMsg("session payload unparsable")
	}

	for _, candidate := range p.candidates() {
		if id := idString(candidate); id != "" {
			return id, nil
		}
	}
	return "", errs.ErrAuthentication.WrapMsg("session carries no user")
}

func (p payload) candidates() []json.RawMessage {
	out := []json.RawMessage{p.UserID}
	if p.Payload != nil {
		out = append(out, p.Payload.UserID)
	}
	if p.Passport != nil {
		out = append(out, p.Passport.User)
	}
	return out
}

// idString accepts string or numeric ids.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
