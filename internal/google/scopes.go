package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultScopes are requested when no scopes are configured. Modify access
// covers reading full messages; nothing is sent or deleted.
var DefaultScopes = []string{
	gmail.GmailModifyScope,
}
