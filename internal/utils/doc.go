// Package utils exposes reusable helpers consumed by multiple commands.
//
// It houses ConfigurationLoader, which layers embedded defaults, configuration
// files, dotenv files, and environment variables through Viper, LoggerFactory
// for zap loggers, and CommandContextAccessor for values shared through
// command contexts.
package utils
