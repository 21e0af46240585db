package telemetry

import "go.uber.org/zap"

// NewLogger builds the router's structured logger. Production mode writes
// JSON to stderr at info level; otherwise a human-readable console encoder
// is used, matching the density of output a developer running `serve`
// locally expects.
func NewLogger(serviceName string, development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", serviceName)), nil
}
