package web

import (
	"context"
	"fmt"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const (
	settingVAPIDPublic  = "push.vapid_public_key"
	settingVAPIDPrivate = "push.vapid_private_key"
)

// SettingsStore is a small key/value store. localdb.LocalDB implements it.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// EnsurePushVAPIDKeys returns the persisted VAPID keypair, generating and
// storing one on first use.
func EnsurePushVAPIDKeys(ctx context.Context, store SettingsStore) (publicKey, privateKey string, generated bool, err error) {
	pub, okPub, err := store.Setting(ctx, settingVAPIDPublic)
	if err != nil {
		return "", "", false, fmt.Errorf("read vapid public key: %w", err)
	}
	priv, okPriv, err := store.Setting(ctx, settingVAPIDPrivate)
	if err != nil {
		return "", "", false, fmt.Errorf("read vapid private key: %w", err)
	}
	pub, priv = strings.TrimSpace(pub), strings.TrimSpace(priv)
	if okPub && okPriv && pub != "" && priv != "" {
		return pub, priv, false, nil
	}

	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", false, fmt.Errorf("generate vapid keypair: %w", err)
	}
	publicKey, privateKey = strings.TrimSpace(publicKey), strings.TrimSpace(privateKey)
	if err := store.SetSetting(ctx, settingVAPIDPrivate, privateKey); err != nil {
		return "", "", false, fmt.Errorf("store vapid private key: %w", err)
	}
	if err := store.SetSetting(ctx, settingVAPIDPublic, publicKey); err != nil {
		return "", "", false, fmt.Errorf("store vapid public key: %w", err)
	}
	return publicKey, privateKey, true, nil
}
