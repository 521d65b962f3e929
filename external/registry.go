package external

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/chain-credentials/issuer-api/models"
	"github.com/chain-credentials/issuer-api/util"
)

const (
	issuersPath = "/issuers/list/"
)

// IssuerRegistryClient fetches the set of known issuers from the issuer
// registry service.
type IssuerRegistryClient struct {
	url string
}

func NewIssuerRegistryClient(url string) *IssuerRegistryClient {
	return &IssuerRegistryClient{url: url}
}

func (c *IssuerRegistryClient) GetIssuers(ctx context.Context) ([]models.Issuer, error) {
	url, err := url.JoinPath(c.url, issuersPath)
	if err != nil {
		return nil, err
	}

	// Limit the response size to 10MB.
	body, err := util.HTTPLimitedGet(ctx, url, 10*1024*1024)
	if err != nil {
		return nil, err
	}

	issuers := make([]models.Issuer, 0, 64)
	if err := json.Unmarshal(body, &issuers); err != nil {
		return nil, err
	}
	return issuers, nil
}

func (c *IssuerRegistryClient) Close() error {
	return nil
}
