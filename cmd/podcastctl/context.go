package main

import (
	"sync"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"research-podcaster/internal/app"
	"research-podcaster/internal/config"
	"research-podcaster/internal/logging"
	"research-podcaster/internal/publisher"
	"research-podcaster/pkg/tasks"
)

// environment is what the commands operate on.
type environment struct {
	store     app.Store
	publisher *publisher.Publisher
	canceler  tasks.TaskCanceler
	close     func()
}

type opener func() (*environment, error)

func openEnvironment() (*environment, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, "console")

	store, err := app.OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	return &environment{
		store:     store,
		publisher: app.NewPublisher(cfg, store),
		canceler:  inspector,
		close:     func() { _ = inspector.Close() },
	}, nil
}

type commandContext struct {
	open opener

	once sync.Once
	env  *environment
	err  error
}

func newCommandContext(open opener) *commandContext {
	return &commandContext{open: open}
}

func (c *commandContext) ensureEnvironment() (*environment, error) {
	c.once.Do(func() {
		c.env, c.err = c.open()
	})
	return c.env, c.err
}

func (c *commandContext) withEnvironment(fn func(*environment) error) error {
	env, err := c.ensureEnvironment()
	if err != nil {
		return err
	}
	return fn(env)
}

func (c *commandContext) shutdown() {
	if c.env != nil && c.env.close != nil {
		c.env.close()
	}
}
