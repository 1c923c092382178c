package core

import (
	"fmt"
	"strings"
)

var originSchemes = []string{"http:", "https:", "ipfs:", "ipns:"}

// StripURL derives the Origin of a source URL. The origin is the third
// slash-separated segment, so "https://dapp.example/app" and
// "http://dapp.example" both map to "dapp.example".
func StripURL(url string) (string, error) {
	valid := false
	for _, scheme := range originSchemes {
		if strings.HasPrefix(url, scheme) {
			valid = true
			break
		}
	}
	if !valid {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, url)
	}

	parts := strings.Split(url, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, url)
	}

	return parts[2], nil
}
