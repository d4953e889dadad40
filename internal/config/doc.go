// Package config loads the easymcpd JSON configuration, fills in defaults and
// resolves secrets from inline values, environment variables or the AWS SSM
// Parameter Store.
package config
