package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const identityRequestTimeout = 10 * time.Second

// IdentityClient resolves holder identifiers to their ledger wallet
// accounts via the identity service.
type IdentityClient struct {
	url    string
	client *http.Client
}

func NewIdentityClient(url string) *IdentityClient {
	return &IdentityClient{
		url: url,
		client: &http.Client{
			Timeout: identityRequestTimeout,
		},
	}
}

type identityResponse struct {
	WalletID string `json:"walletId"`
}

func (c *IdentityClient) WalletID(ctx context.Context, owner string) (string, error) {
	path := c.url + "/identities/" + url.PathEscape(owner)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSignerBodySize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity lookup for %q failed with status %d", owner, resp.StatusCode)
	}

	var identity identityResponse
	if err := json.Unmarshal(raw, &identity); err != nil {
		return "", fmt.Errorf("malformed identity response: %w", err)
	}
	if identity.WalletID == "" {
		return "", fmt.Errorf("identity %q has no wallet", owner)
	}
	return identity.WalletID, nil
}
