// Package logging provides structured logging utilities for inbleach.
//
// Components accept the Logger interface and are handed a SlogAdapter built
// from the process logger:
//
//	base, err := logging.New("info", "json", os.Stderr)
//	if err != nil {
//		return err
//	}
//	log := logging.NewSlogAdapter(base)
//	log.Info("unsubscribed", logging.MessageID(id), logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
//   - Tokens are never logged directly, see SanitizeToken
//   - Unsubscribe links are logged without their query, see SanitizeURL
//   - Senders are logged by domain only, see SenderDomain
package logging
