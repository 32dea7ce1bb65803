package security

import (
	"context"
	"time"

	"PPGateway/global"
	"PPGateway/service/session"
	"PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
)

// context keys set by Middleware
const (
	PPCtxUserKey    = "ppUserId"  // string
	PPCtxAuthErrKey = "ppAuthErr" // error
)

// SessionValidator resolves a session token to a user id.
type SessionValidator interface {
	Validate(ctx context.Context, t session.Token) (string, error)
}

type Options struct {
	CookieName string        // default "connect.sid"
	Timeout    time.Duration // bound on the session lookup, default 3s
	// Abort rejects the request with 401 on failure. The websocket route
	// leaves it false so it can close the upgraded socket itself.
	Abort bool
}

func DefaultOptions() *Options {
	return &Options{CookieName: "connect.sid", Timeout: 3 * time.Second}
}

// Middleware resolves the session cookie once per request and stores either
// the user id or the authentication error in the gin context.
func Middleware(v SessionValidator, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return func(c *gin.Context) {
		userID, err := authenticate(c, v, opts)
		if err != nil {
			c.Set(PPCtxAuthErrKey, err)
			if opts.Abort {
				c.AbortWithStatusJSON(global.Fail(err))
				return
			}
			c.Next()
			return
		}
		c.Set(PPCtxUserKey, userID)
		c.Next()
	}
}

func authenticate(c *gin.Context, v SessionValidator, opts *Options) (string, error) {
	token, err := session.ParseCookie(c.GetHeader("Cookie"), opts.CookieName)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
	defer cancel()
	return v.Validate(ctx, token)
}

// UserID returns the user resolved by Middleware. A request that never went
// through Middleware is unauthenticated.
func UserID(c *gin.Context) (string, error) {
	if v, ok := c.Get(PPCtxUserKey); ok {
		if id, _ := v.(string); id != "" {
			return id, nil
		}
	}
	if v, ok := c.Get(PPCtxAuthErrKey); ok {
		if err, _ := v.(error); err != nil {
			return "", err
		}
	}
	return "", errs.ErrAuthentication.WrapMsg("request not authenticated")
}
