package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds runtime configuration for the player client.
type App struct {
	Name        string `env:"APP_NAME" envDefault:"quiz-player"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`

	Authority Authority
	Polling   Polling
}

// Authority captures how to reach the remote session authority.
type Authority struct {
	BaseURL     string        `env:"AUTHORITY_URL" envDefault:"http://localhost:5005"`
	HTTPTimeout time.Duration `env:"AUTHORITY_HTTP_TIMEOUT" envDefault:"5s"`
}

// Polling groups the cadences of the two poll loops and the off-cadence
// question check issued right after a successful submission.
type Polling struct {
	StatusInterval   time.Duration `env:"STATUS_POLL_INTERVAL" envDefault:"2s"`
	QuestionInterval time.Duration `env:"QUESTION_POLL_INTERVAL" envDefault:"1s"`
	PostSubmitDelay  time.Duration `env:"POST_SUBMIT_POLL_DELAY" envDefault:"500ms"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
