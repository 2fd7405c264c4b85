// Package logger builds the application's slog.Logger: colored tint output
// for development and JSON for production, tagged with the environment.
package logger
