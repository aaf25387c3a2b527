// Package config loads the operator configuration.
//
// Configuration is read from a single directory containing config.yaml. A
// missing file is not an error: every field has a default, and the values
// given on the command line are applied on top of whatever was loaded.
//
// # File Format
//
//	namespace: databases
//	workers: 2
//	maxRetries: 10
//	migration:
//	  pollIntervalSeconds: 5
//	  pollMaxAttempts: 36
//	  retryDelaySeconds: 30
//	job:
//	  image: migliuss/job-script-image:latest
//	  backoffLimit: 3
//	  ttlSecondsAfterFinished: 300
//	downstream:
//	  name: orders-api
//	  container: api
//	  envVar: DB_VERSION
//	server:
//	  address: ":8080"
//	logging:
//	  level: info
//	  format: text
//
// # Reloading
//
// Watcher follows config.yaml and hands every successfully parsed and
// validated revision to a callback. Only the migration section takes
// effect without a restart.
package config
