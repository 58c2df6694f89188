package venue

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/lancilotto/hl-agent/internal/config"
)

// Credentials is the resolved master-account/API-wallet pair used to build
// a Config. Confusing the two addresses is the one bug spec §4.1 calls out
// explicitly, so resolution happens in one place.
type Credentials struct {
	MasterAccountAddress string
	WalletAddress        string
	PrivateKey           string
}

// ResolveCredentials picks testnet or mainnet credentials from config, then
// overlays any values found in Vault at VaultConfig.SecretPath when Vault
// is enabled. Vault values win over env-sourced config, matching the
// teacher's practice of Vault as the authoritative secret store.
func ResolveCredentials(ctx context.Context, cfg config.Config) (Credentials, error) {
	creds := Credentials{
		MasterAccountAddress: cfg.Venue.MasterAccountAddress,
		WalletAddress:        cfg.Venue.WalletAddress,
		PrivateKey:           cfg.Venue.PrivateKey,
	}
	if cfg.Venue.Testnet {
		creds = Credentials{
			MasterAccountAddress: cfg.Venue.TestnetMasterAccount,
			WalletAddress:        cfg.Venue.TestnetWalletAddress,
			PrivateKey:           cfg.Venue.TestnetPrivateKey,
		}
	}

	if !cfg.Vault.Enabled {
		return creds, nil
	}

	client, err := vaultapi.NewClient(&vaultapi.Config{Address: cfg.Vault.Address})
	if err != nil {
		return creds, fmt.Errorf("venue: vault client: %w", err)
	}
	client.SetToken(cfg.Vault.Token)

	secret, err := client.Logical().ReadWithContext(ctx, fmt.Sprintf("%s/data/%s", cfg.Vault.MountPath, cfg.Vault.SecretPath))
	if err != nil || secret == nil || secret.Data == nil {
		// Vault is a convenience overlay, not a hard requirement: fall back
		// silently to env-sourced credentials on any read failure.
		return creds, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return creds, nil
	}
	if v, ok := data["master_account_address"].(string); ok && v != "" {
		creds.MasterAccountAddress = v
	}
	if v, ok := data["wallet_address"].(string); ok && v != "" {
		creds.WalletAddress = v
	}
	if v, ok := data["private_key"].(string); ok && v != "" {
		creds.PrivateKey = v
	}
	return creds, nil
}
