package config

import (
	"fmt"

	"github.com/google/uuid"
)

const apiTokenKey = "server.api_token"

// GetAPIToken returns the bearer token protecting the local API, generating
// and persisting one on first use.
func GetAPIToken(b ConfigBackend) (string, error) {
	token, ok, err := b.GetString(apiTokenKey)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if ok && token != "" {
		return token, nil
	}

	token = uuid.New().String()
	if err := b.SetString(apiTokenKey, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}

// NewBackend returns the default settings backend.
func NewBackend() ConfigBackend {
	return newFileBackend()
}

// SaveRemote persists the main-server coordinates. Used by the settings
// endpoint after the user confirms working values; the API key is written
// here deliberately, bypassing the secret guard in SetKey.
func SaveRemote(b ConfigBackend, rc RemoteConfig) error {
	pairs := map[string]string{
		"remote.server_url":  rc.ServerURL,
		"remote.api_key":     rc.APIKey,
		"remote.branch_id":   rc.BranchID,
		"remote.branch_name": rc.BranchName,
	}
	for key, val := range pairs {
		if err := b.SetString(key, val); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
	}
	return nil
}
