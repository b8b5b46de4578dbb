package cache

import (
	"fmt"
	"runtime/debug"

	"github.com/tutormesh/aicache/pkg/observability"
)

// SafeExecute executes a function with panic recovery and returns the panic
// as an error.
func SafeExecute(logger observability.Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered", map[string]interface{}{
				"operation": operation,
				"panic":     r,
				"stack":     string(debug.Stack()),
			})

			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic in %s: %v", operation, r)
			}
		}
	}()

	return fn()
}

// SafeGo runs a goroutine with panic recovery so fire-and-forget work can
// never take the process down.
func SafeGo(logger observability.Logger, operation string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in goroutine", map[string]interface{}{
					"operation": operation,
					"panic":     r,
					"stack":     string(debug.Stack()),
				})
			}
		}()

		fn()
	}()
}
