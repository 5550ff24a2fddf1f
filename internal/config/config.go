package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vk/wormhole/internal/transport"
)

// Render kinds.
const (
	RenderLog  = "log"
	RenderDOT  = "dot"
	RenderNone = "none"
)

// Config is the complete client configuration.
type Config struct {
	Server   Server
	Tracking Tracking
	Render   Render
	HTTP     HTTP
	Log      Log
}

// Server describes the map server connection.
type Server struct {
	URL                string        `validate:"required,url"`
	Transport          string        `validate:"oneof=websocket socketio"`
	Namespace          string        `validate:"omitempty,startswith=/"`
	InsecureSkipVerify bool
	Cookie             string
	ReconnectDelay     time.Duration `validate:"gt=0"`
}

// Tracking controls the session loop.
type Tracking struct {
	BackupInterval time.Duration `validate:"gt=0"`
	AutoTrack      bool
}

// Render selects the render bridge.
type Render struct {
	Kind string `validate:"oneof=log dot none"`
	Path string `validate:"required_if=Kind dot"`
}

// HTTP configures the local control surface. Port 0 disables it.
type HTTP struct {
	Port int `validate:"gte=0,lte=65535"`
}

// Log configures the process logger.
type Log struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// Default returns the configuration used when neither a file nor flags
// say otherwise.
func Default() *Config {
	return &Config{
		Server: Server{
			URL:            "ws://localhost:8888/poll",
			Transport:      transport.WebSocketTransport,
			Namespace:      "/",
			ReconnectDelay: 5 * time.Second,
		},
		Tracking: Tracking{
			BackupInterval: 3 * time.Second,
		},
		Render: Render{
			Kind: RenderLog,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// TransportConfig converts the server block into dial options.
func (s Server) TransportConfig() transport.Config {
	return transport.Config{
		URL:                s.URL,
		Transport:          s.Transport,
		Namespace:          s.Namespace,
		InsecureSkipVerify: s.InsecureSkipVerify,
		Cookie:             s.Cookie,
	}
}

var validate = validator.New()

// Validate checks cfg and reports every violated rule.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("invalid %s: %q fails %q", fe.Namespace(), fmt.Sprint(fe.Value()), ruleOf(fe)))
	}
	return errors.Join(errs...)
}

func ruleOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
