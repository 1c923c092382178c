package core

// AuthUrlInfo records what an origin has been granted. The whole origin to
// AuthUrlInfo map is persisted on every change.
type AuthUrlInfo struct {
	Origin             string   `json:"origin"`
	URL                string   `json:"url"`
	AuthorizedAccounts []string `json:"authorizedAccounts"`

	// IsAllowedLegacy is the flag written by older versions. An entry with
	// no authorized accounts and this flag set allows every account.
	IsAllowedLegacy *bool `json:"isAllowed,omitempty"`

	// Denied marks a rejection the user asked to remember.
	Denied       bool `json:"denied,omitempty"`
	RequestCount int  `json:"requestCount"`
}

// Account is a keypair known to the keyring.
type Account struct {
	Address     string `json:"address"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	GenesisHash string `json:"genesisHash,omitempty"`
}

// AllowsAll reports whether the legacy all-accounts branch applies.
func (a AuthUrlInfo) AllowsAll() bool {
	return len(a.AuthorizedAccounts) == 0 && a.IsAllowedLegacy != nil && *a.IsAllowedLegacy
}

// IsAuthorized reports whether address may be exposed to the origin.
func (a AuthUrlInfo) IsAuthorized(address string) bool {
	if a.Denied {
		return false
	}
	if a.AllowsAll() {
		return true
	}
	for _, acc := range a.AuthorizedAccounts {
		if acc == address {
			return true
		}
	}
	return false
}

// FilterAccounts returns the keyring accounts visible to the origin, in
// keyring order.
func (a AuthUrlInfo) FilterAccounts(all []Account) []Account {
	visible := make([]Account, 0, len(all))
	for _, acc := range all {
		if a.IsAuthorized(acc.Address) {
			visible = append(visible, acc)
		}
	}
	return visible
}

// Clone returns a deep copy.
func (a AuthUrlInfo) Clone() AuthUrlInfo {
	c := a
	c.AuthorizedAccounts = append([]string(nil), a.AuthorizedAccounts...)
	if a.IsAllowedLegacy != nil {
		v := *a.IsAllowedLegacy
		c.IsAllowedLegacy = &v
	}
	return c
}
