package errreport

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gabe/botpool/internal/logger"
)

// Diagnostic wraps callables with timing logs and error capture.
// Wrapped functions return exactly what the inner function returned and
// re-panic with the original value.
type Diagnostic struct {
	reporter *Reporter
	log      logger.Logger
}

// NewDiagnostic creates a Diagnostic. reporter and log may be nil.
func NewDiagnostic(reporter *Reporter, log logger.Logger) *Diagnostic {
	if log == nil {
		log = logger.NewNop()
	}
	return &Diagnostic{reporter: reporter, log: log}
}

// Wrap returns fn instrumented under name
func (d *Diagnostic) Wrap(name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := Diagnose(d, name, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})(ctx)
		return err
	}
}

// Diagnose instruments a value-returning fn
func Diagnose[T any](d *Diagnostic, name string, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (result T, err error) {
		start := time.Now()
		d.log.Debug("Entering "+name)

		defer func() {
			if p := recover(); p != nil {
				d.log.Error("Panic in "+name, logger.Any("panic", p), logger.Duration("elapsed", time.Since(start)))
				if d.reporter != nil {
					d.reporter.CapturePanic(p, debug.Stack())
				}
				panic(p)
			}
		}()

		result, err = fn(ctx)
		elapsed := time.Since(start)
		if err != nil {
			d.log.Error("Error in "+name, logger.Error(err), logger.Duration("elapsed", elapsed))
			if d.reporter != nil {
				d.reporter.Capture(err)
			}
			return result, err
		}

		d.log.Debug("Exiting "+name, logger.Duration("elapsed", elapsed))
		return result, nil
	}
}
