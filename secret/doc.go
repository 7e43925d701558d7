// Package secret resolves credentials referenced from configuration.
//
// A configuration value may embed environment variables as ${VAR} (a missing
// variable is an error, $$ is a literal dollar) and secret references of the
// form secretref:<provider>:<ref>, resolved through a Provider such as
// EnvProvider or FileProvider.
package secret
