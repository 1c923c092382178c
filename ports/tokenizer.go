package ports

import "time"

// Tokenizer issues and verifies the tokens that admit the extension's own
// pages to the privileged port.
type Tokenizer interface {
	IssueExtensionToken(ttl time.Duration) (string, error)
	VerifyExtensionToken(token string) error
}
