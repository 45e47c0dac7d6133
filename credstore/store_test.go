package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ShopifyRoundTripEncryptsAccessToken(t *testing.T) {
	dir := t.TempDir()
	cipher, err := NewCipher("test-secret")
	require.NoError(t, err)
	store := NewStore(dir, cipher)

	records := map[string]*ShopifyShopRecord{
		"my-shop.myshopify.com": {
			AccessToken:     "shpat_plaintext_token",
			GrantedScopes:   []string{"read_products"},
			RequestedScopes: []string{"read_products", "read_orders"},
			APIVersion:      "2025-04",
		},
	}
	require.NoError(t, store.SaveShopifyCredentials(records))

	raw, err := os.ReadFile(filepath.Join(dir, shopifyCredentialsFile))
	require.NoError(t, err)
	var onDisk shopifyCredentialFile
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.NotEqual(t, "shpat_plaintext_token", onDisk.Shops["my-shop.myshopify.com"].AccessToken)

	loaded, err := store.LoadShopifyCredentials()
	require.NoError(t, err)
	rec := loaded["my-shop.myshopify.com"]
	require.NotNil(t, rec)

	decrypted, err := store.DecryptShopToken(rec)
	require.NoError(t, err)
	assert.Equal(t, "shpat_plaintext_token", decrypted)
}

func TestStore_LoadShopify_MissingFileReturnsEmptyMap(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	loaded, err := store.LoadShopifyCredentials()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestUpgradeLegacyShopifyRecord(t *testing.T) {
	rec := &ShopifyShopRecord{
		AccessToken: "token",
		Scopes:      []string{"read_products", "read_orders"},
	}
	upgradeLegacyShopifyRecord(rec)
	assert.Equal(t, []string{"read_products", "read_orders"}, rec.GrantedScopes)
	assert.Equal(t, []string{"read_products", "read_orders"}, rec.RequestedScopes)
}

func TestUpgradeLegacyShopifyRecord_LeavesModernRecordUntouched(t *testing.T) {
	rec := &ShopifyShopRecord{
		GrantedScopes:   []string{"read_products"},
		RequestedScopes: []string{"read_products", "write_products"},
	}
	upgradeLegacyShopifyRecord(rec)
	assert.Equal(t, []string{"read_products"}, rec.GrantedScopes)
	assert.Equal(t, []string{"read_products", "write_products"}, rec.RequestedScopes)
}

func TestStore_SlackRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	workspaces := []SlackWorkspaceRecord{{ID: 1, Name: "acme", IsDefault: true}}
	require.NoError(t, store.SaveSlackCredentials(42, workspaces))

	userID, loaded, err := store.LoadSlackCredentials()
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
	assert.Equal(t, workspaces, loaded)
}
