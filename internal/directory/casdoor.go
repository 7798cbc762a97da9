package directory

import (
	"context"
	"fmt"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
)

// CasdoorDirectory resolves candidate and reviewer identities against the
// organization's Casdoor instance.
type CasdoorDirectory struct {
	client *casdoorsdk.Client
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Certificate  string
	Organization string
	Application  string
}

func NewCasdoorDirectory(cfg CasdoorConfig) *CasdoorDirectory {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorDirectory{client: client}
}

// Resolve returns the display name for a user ID. Unknown users are an error;
// callers treat that as a validation failure.
func (d *CasdoorDirectory) Resolve(ctx context.Context, candidateID string) (string, error) {
	user, err := d.client.GetUser(candidateID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", candidateID, err)
	}
	if user == nil {
		return "", fmt.Errorf("user %s not found", candidateID)
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Name, nil
}

// StaticDirectory is a directory backed by a fixed map, used when Casdoor is
// not configured (local development) and in tests.
type StaticDirectory struct {
	Users map[string]string
}

func (d *StaticDirectory) Resolve(ctx context.Context, candidateID string) (string, error) {
	if name, ok := d.Users[candidateID]; ok {
		return name, nil
	}
	// Unconfigured directories accept every ID as-is.
	if d.Users == nil {
		return candidateID, nil
	}
	return "", fmt.Errorf("user %s not found", candidateID)
}
