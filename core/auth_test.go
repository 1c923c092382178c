package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthUrlInfoIsAuthorized(t *testing.T) {
	allowed := true

	info := AuthUrlInfo{Origin: "dapp.example", AuthorizedAccounts: []string{"a"}}
	require.True(t, info.IsAuthorized("a"))
	require.False(t, info.IsAuthorized("b"))

	legacy := AuthUrlInfo{Origin: "old.example", IsAllowedLegacy: &allowed}
	require.True(t, legacy.AllowsAll())
	require.True(t, legacy.IsAuthorized("anything"))

	// An explicit list wins over the legacy flag.
	legacy.AuthorizedAccounts = []string{"a"}
	require.False(t, legacy.AllowsAll())
	require.False(t, legacy.IsAuthorized("b"))

	denied := AuthUrlInfo{Origin: "bad.example", AuthorizedAccounts: []string{"a"}, Denied: true}
	require.False(t, denied.IsAuthorized("a"))
}

func TestAuthUrlInfoFilterAccountsKeepsKeyringOrder(t *testing.T) {
	info := AuthUrlInfo{AuthorizedAccounts: []string{"c", "a"}}
	all := []Account{{Address: "a"}, {Address: "b"}, {Address: "c"}}

	got := info.FilterAccounts(all)
	require.Equal(t, []Account{{Address: "a"}, {Address: "c"}}, got)

	require.Empty(t, AuthUrlInfo{}.FilterAccounts(all))
}

func TestAuthUrlInfoLegacyRecord(t *testing.T) {
	var info AuthUrlInfo
	err := json.Unmarshal([]byte(`{"origin":"old.example","url":"https://old.example","isAllowed":true,"requestCount":3}`), &info)
	require.NoError(t, err)
	require.True(t, info.AllowsAll())

	clone := info.Clone()
	*clone.IsAllowedLegacy = false
	require.True(t, *info.IsAllowedLegacy)
}
