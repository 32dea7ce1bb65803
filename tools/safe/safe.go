package safe

import (
	"runtime/debug"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// Recover must be deferred directly. A panic is logged and, if onPanic is
// non-nil, reported to it as an INTERNAL_ERROR instead of crashing the
// process.
func Recover(onPanic func(error)) {
	r := recover()
	if r == nil {
		return
	}
	err := errs.ErrPanic(r)
	logger.Error("[safe] panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	if onPanic != nil {
		onPanic(err)
	}
}
