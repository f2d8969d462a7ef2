package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	baseRetryDelay = time.Minute
	maxRetryDelay  = 30 * time.Minute
)

// NewServer returns an asynq server for the generation and feed queues.
// Generation tasks are never retried, so the backoff below applies to feed
// rebuilds only.
func NewServer(redisAddr string, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"high":    2,
				"default": 1,
			},
			RetryDelayFunc: RetryDelay,
			Logger:         zerologAdapter{},
		},
	)
}

// RetryDelay doubles from one minute per failed attempt, capped at thirty.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	log.Warn().Err(err).Str("task", task.Type()).Int("attempt", n+1).Dur("delay", delay).Msg("Task failed, retrying")
	return delay
}

// zerologAdapter routes asynq's own logging through the global logger.
type zerologAdapter struct{}

func (zerologAdapter) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (zerologAdapter) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }
