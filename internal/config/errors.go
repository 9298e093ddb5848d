package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading RUBYAMS_CONFIG or the environment.
	ErrLoadConfig = errors.New("load config failed")
)
