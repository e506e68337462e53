// Package observability provides structured logging and metrics for
// loggather.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - request-scoped loggers carried on context.Context
//   - Prometheus collectors for the retrieval pipeline and job workers
package observability
