// Package logger wraps zap with a process-wide sugared logger
// and context helpers (ToContext/FromContext/WithName/WithKV/WithFields)
// so call sites can log without threading a logger through every type.
//
// The global logger writes colorized console lines to stdout and defaults
// to the info level; Setup installs the level configured for the service.
package logger
