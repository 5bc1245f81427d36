package digestservice

import (
	"context"
	"fmt"

	"cyber-digest/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Schedule registers Run on a standard five-field cron spec. A tick that
// arrives while the previous run is still going is skipped, and a panicking
// run is logged instead of stopping the scheduler. The caller starts and
// stops the returned cron.
func (s *Service) Schedule(ctx context.Context, spec string, onDone func(Outcome)) (*cron.Cron, error) {
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))

	if _, err := c.AddFunc(spec, func() {
		out := s.Run(ctx)
		if onDone != nil {
			onDone(out)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
