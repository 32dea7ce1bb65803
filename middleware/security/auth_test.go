package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"PPGateway/service/session"
	"PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeValidator map[session.Token]string

func (f fakeValidator) Validate(_ context.Context, t session.Token) (string, error) {
	if id, ok := f[t]; ok {
		return id, nil
	}
	return "", errs.ErrAuthentication.WrapMsg("session not found")
}

func run(t *testing.T, opts *Options, cookie string) (int, string, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var (
		gotUser string
		gotErr  error
	)
	r := gin.New()
	r.GET("/ws", Middleware(fakeValidator{"abc": "u1"}, opts), func(c *gin.Context) {
		gotUser, gotErr = UserID(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code, gotUser, gotErr
}

func TestMiddleware_Resolves(t *testing.T) {
	code, user, err := run(t, nil, "connect.sid=s%3Aabc.sig")
	assert.Equal(t, http.StatusOK, code)
	assert.NoError(t, err)
	assert.Equal(t, "u1", user)
}

func TestMiddleware_PassThroughOnFailure(t *testing.T) {
	for _, cookie := range []string{"", "connect.sid=s%3Aunknown.sig", "other=abc"} {
		code, user, err := run(t, nil, cookie)
		assert.Equal(t, http.StatusOK, code, cookie)
		assert.Empty(t, user, cookie)
		assert.True(t, errors.Is(err, errs.ErrAuthentication), cookie)
	}
}

func TestMiddleware_Abort(t *testing.T) {
	opts := DefaultOptions()
	opts.Abort = true
	code, _, _ := run(t, opts, "connect.sid=nope")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestUserID_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, err := UserID(c)
	assert.True(t, errors.Is(err, errs.ErrAuthentication))
}
