// Package constants holds shared configuration values used across layers.
package constants

// Pub/Sub provider names accepted in configuration.
const (
	PubSubProviderGoogle = "google"
	PubSubProviderLocal  = "local"
	PubSubProviderNone   = "none"
)

// Deployment environment names.
const (
	EnvDevelop    = "develop"
	EnvStaging    = "staging"
	EnvProduction = "production"
)
