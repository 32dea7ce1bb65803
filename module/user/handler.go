// Package user serves the HTTP side of presence: who am I, and is a given
// user online.
package user

import (
	"context"
	"net/http"
	"strings"
	"time"

	"PPGateway/global"
	"PPGateway/middleware"
	"PPGateway/middleware/security"
	"PPGateway/service/presence"
	"PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
)

const lookupTimeout = 2 * time.Second

// StatusReader is the part of *presence.Tracker these handlers use.
type StatusReader interface {
	GetStatus(ctx context.Context, userID string) (presence.Status, error)
}

type Status struct {
	UserID string          `json:"userId"`
	Status presence.Status `json:"status"`
}

// Register mounts the presence queries under r. Both need a session.
func Register(r gin.IRoutes, rt middleware.Routes, pr StatusReader) {
	rt.GET(r, "/users/me", HandlerMe(pr), middleware.RouteOpt{IsAuth: true})
	rt.GET(r, "/users/:id/status", HandlerStatus(pr), middleware.RouteOpt{IsAuth: true})
}

// HandlerMe answers the session's own user and presence. Mount behind the
// security middleware.
func HandlerMe(pr StatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := security.UserID(c)
		if err != nil {
			c.JSON(global.Fail(err))
			return
		}
		answer(c, pr, userID)
	}
}

// HandlerStatus answers GET .../:id/status.
func HandlerStatus(pr StatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := security.UserID(c); err != nil {
			c.JSON(global.Fail(err))
			return
		}
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			c.JSON(global.Fail(errs.NewValidationError(nil, errs.FieldError{Field: "id", Message: "is required"})))
			return
		}
		answer(c, pr, id)
	}
}

func answer(c *gin.Context, pr StatusReader, userID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout)
	defer cancel()
	st, err := pr.GetStatus(ctx, userID)
	if err != nil {
		c.JSON(global.Fail(err))
		return
	}
	c.JSON(http.StatusOK, global.Success(Status{UserID: userID, Status: st}))
}
