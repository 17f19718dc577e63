// Package cmd implements the command-line interface for inbleach.
//
// This package provides the following commands:
//   - serve: Start the HTTP API with the browser OAuth flow
//   - sweep: Unsubscribe from marketing email received in the last days
//   - login: Authorize the command line tools and save the credentials
//   - logout: Remove the saved credentials
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
// Configuration comes from flags, INBLEACH_* environment variables and an
// optional inbleach.yaml, resolved by viper.
package cmd
