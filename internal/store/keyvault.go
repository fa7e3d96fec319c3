package store

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"go.uber.org/zap"

	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/recovery"
	"github.com/dkmnx/with/internal/validate"
)

// KeyVaultBackend is the name of the Azure Key Vault backend.
const KeyVaultBackend = "azure-keyvault"

const (
	secretPrefix      = "with-"
	maxSecretNameLen  = 127
	secretContentType = "application/octet-stream; encoding=base64"
)

// Key Vault throttles per vault, so retries spread out more than the
// package defaults.
const (
	keyVaultMaxRetries = 4
	keyVaultMaxDelay   = 10 * time.Second
	keyVaultJitter     = 0.2

	// recoverExtraRetries covers the asynchronous recovery of a
	// soft-deleted secret.
	recoverExtraRetries = 3
)

func init() {
	mustRegister(KeyVaultBackend, func(opts Options) (Store, error) {
		return NewKeyVaultStore(opts.VaultURL, opts.logger())
	})
}

// secretsClient is the part of *azsecrets.Client the store uses.
type secretsClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	RecoverDeletedSecret(ctx context.Context, name string, options *azsecrets.RecoverDeletedSecretOptions) (azsecrets.RecoverDeletedSecretResponse, error)
}

// KeyVaultStore keeps secrets in an Azure Key Vault. Profile and name are
// hex encoded into the secret name because Key Vault only allows
// alphanumerics and dashes there.
type KeyVaultStore struct {
	client secretsClient
	retry  recovery.RetryConfig
	logger *zap.Logger
}

// NewKeyVaultStore connects to the vault at vaultURL with DefaultAzureCredential.
func NewKeyVaultStore(vaultURL string, logger *zap.Logger) (*KeyVaultStore, error) {
	if err := validate.ValidateVaultURL(vaultURL); err != nil {
		return nil, witherrors.WrapError(witherrors.ConfigError, "azure-keyvault backend needs keyvault.url", err)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, witherrors.WrapError(witherrors.ConfigError, "failed to create DefaultAzureCredential", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, witherrors.WrapError(witherrors.NetworkError, "failed to create Key Vault client", err)
	}

	retry := recovery.NewRetryConfig(
		recovery.WithMaxRetries(keyVaultMaxRetries),
		recovery.WithMaxDelay(keyVaultMaxDelay),
		recovery.WithJitterFactor(keyVaultJitter),
	)
	return newKeyVaultStore(client, retry, logger), nil
}

func newKeyVaultStore(client secretsClient, retry recovery.RetryConfig, logger *zap.Logger) *KeyVaultStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyVaultStore{client: client, retry: retry, logger: logger.Named("keyvault")}
}

// SecretName returns the Key Vault secret name for (profile, name).
func SecretName(profile, name string) (string, error) {
	s := secretPrefix + hex.EncodeToString([]byte(profile)) + "-" + hex.EncodeToString([]byte(name))
	if len(s) > maxSecretNameLen {
		return "", witherrors.NewError(witherrors.ValidationError,
			fmt.Sprintf("profile and secret name are too long for Key Vault (max %d encoded characters)", maxSecretNameLen)).
			WithContext("profile", profile).
			WithContext("name", name)
	}
	return s, nil
}

// Get implements Store.
func (s *KeyVaultStore) Get(ctx context.Context, profile, name string) ([]byte, error) {
	secretName, err := SecretName(profile, name)
	if err != nil {
		return nil, err
	}

	resp, err := recovery.Retry(ctx, s.retry, func() (azsecrets.GetSecretResponse, error) {
		return s.client.GetSecret(ctx, secretName, "", nil)
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, witherrors.StoreErr("failed to get secret from Key Vault", profile, err).
			WithContext("name", name)
	}
	if resp.Value == nil {
		return nil, witherrors.StoreErr("secret has no value", profile, nil).
			WithContext("name", name)
	}

	value, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return nil, witherrors.StoreErr("corrupt Key Vault secret", profile, err).
			WithContext("name", name)
	}
	return value, nil
}

// Set implements Store.
func (s *KeyVaultStore) Set(ctx context.Context, profile, name string, value []byte) error {
	secretName, err := SecretName(profile, name)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(value)
	contentType := secretContentType
	params := azsecrets.SetSecretParameters{
		Value:       &encoded,
		ContentType: &contentType,
		Tags: map[string]*string{
			"with-profile": &profile,
			"with-name":    &name,
		},
	}

	set := func() error {
		_, err := s.client.SetSecret(ctx, secretName, params, nil)
		return err
	}

	err = recovery.RetryWithoutResult(ctx, s.retry, set)
	if isDeletedButRecoverable(err) {
		// A soft-deleted secret blocks its name until it is recovered or
		// purged. Recovery completes asynchronously, so conflicts are retried.
		s.logger.Debug("recovering soft-deleted secret", zap.String("profile", profile), zap.String("name", name))
		if _, rerr := s.client.RecoverDeletedSecret(ctx, secretName, nil); rerr != nil {
			return witherrors.StoreErr("failed to recover soft-deleted secret", profile, rerr).
				WithContext("name", name)
		}
		cfg := s.retry.With(
			recovery.WithMaxRetries(s.retry.MaxRetries+recoverExtraRetries),
			recovery.WithRetryableFunc(func(err error) bool { return isConflict(err) || recovery.IsTransient(err) }),
		)
		err = recovery.RetryWithoutResult(ctx, cfg, set)
	}
	if err != nil {
		return witherrors.StoreErr("failed to set secret in Key Vault", profile, err).
			WithContext("name", name)
	}

	s.logger.Debug("secret stored", zap.String("profile", profile), zap.String("name", name))
	return nil
}

// Delete implements Store. Vaults with soft delete keep the secret
// recoverable until it is purged.
func (s *KeyVaultStore) Delete(ctx context.Context, profile, name string) error {
	secretName, err := SecretName(profile, name)
	if err != nil {
		return err
	}

	err = recovery.RetryWithoutResult(ctx, s.retry, func() error {
		_, err := s.client.DeleteSecret(ctx, secretName, nil)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return witherrors.StoreErr("failed to delete secret from Key Vault", profile, err).
			WithContext("name", name)
	}

	s.logger.Debug("secret deleted", zap.String("profile", profile), zap.String("name", name))
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict
}

func isDeletedButRecoverable(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) &&
		respErr.StatusCode == http.StatusConflict &&
		respErr.ErrorCode == "ObjectIsDeletedButRecoverable"
}
