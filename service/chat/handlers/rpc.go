package handlers

import (
	"context"
	"time"

	"PPGateway/service/chat"
	"PPGateway/service/rpc"
)

// Backend services.
const (
	ServiceChat    = "chat"
	ServiceMessage = "message"
	ServiceUser    = "user"
)

const presenceTimeout = 3 * time.Second

// call forwards payload to service.method on behalf of the socket's user.
// The user id always comes from the session, never from the client.
func call(c *chat.Context, service, method string, timeout time.Duration, payload, out any) error {
	return c.RPC().Call(c.Context(), &rpc.Call{
		Service: service,
		Method:  method,
		UserID:  c.UserID(),
		Payload: payload,
		Timeout: timeout,
	}, out)
}

func presenceCtx(c *chat.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), presenceTimeout)
}
