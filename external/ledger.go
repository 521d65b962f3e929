package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chain-credentials/issuer-api/services"
)

const ledgerRequestTimeout = 30 * time.Second

// LedgerClient submits signed transactions to a ledger node and answers
// read-side asset queries from its mirror API.
type LedgerClient struct {
	url    string
	client *http.Client
}

func NewLedgerClient(url string) *LedgerClient {
	return &LedgerClient{
		url: url,
		client: &http.Client{
			Timeout: ledgerRequestTimeout,
		},
	}
}

func (c *LedgerClient) get(ctx context.Context, path string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSignerBodySize))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("ledger query %s failed with status %d", path, resp.StatusCode)
	}
	return resp.StatusCode, json.Unmarshal(raw, out)
}

type submitResponse struct {
	Status       string `json:"status"`
	SerialNumber string `json:"serialNumber"`
}

// Submit sends a signed transaction and blocks until the ledger reports a
// receipt. Submission is not revocable: callers must wait for the receipt
// even when they no longer want the result.
func (c *LedgerClient) Submit(ctx context.Context, body, signature []byte) (*services.Receipt, error) {
	payload, err := json.Marshal(map[string]string{
		"transaction": base64.StdEncoding.EncodeToString(body),
		"signature":   hex.EncodeToString(signature),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSignerBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("transaction submit failed with status %d", resp.StatusCode)
	}

	var receipt submitResponse
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("malformed receipt: %w", err)
	}
	return &services.Receipt{
		Status: receipt.Status,
		Serial: receipt.SerialNumber,
	}, nil
}

type nftInfoResponse struct {
	AccountID string `json:"accountId"`
}

func (c *LedgerClient) AssetOwner(ctx context.Context, tokenID, serial string) (string, error) {
	var info nftInfoResponse
	path := fmt.Sprintf("/tokens/%s/nfts/%s", tokenID, serial)
	if _, err := c.get(ctx, path, &info); err != nil {
		return "", err
	}
	return info.AccountID, nil
}

type tokenRelationshipResponse struct {
	FreezeStatus string `json:"freezeStatus"`
}

func (c *LedgerClient) FreezeStatus(ctx context.Context, tokenID, walletID string) (services.FreezeState, error) {
	var rel tokenRelationshipResponse
	path := fmt.Sprintf("/accounts/%s/tokens/%s", walletID, tokenID)
	status, err := c.get(ctx, path, &rel)
	if status == http.StatusNotFound {
		// No relationship between the account and the token.
		return services.NotAssociated, nil
	}
	if err != nil {
		return "", err
	}
	return services.FreezeState(rel.FreezeStatus), nil
}

type tokenListResponse struct {
	Tokens []struct {
		TokenID string `json:"tokenId"`
	} `json:"tokens"`
}

func (c *LedgerClient) TokenCount(ctx context.Context, walletID string) (int, error) {
	var list tokenListResponse
	if _, err := c.get(ctx, "/accounts/"+walletID+"/tokens", &list); err != nil {
		return 0, err
	}
	return len(list.Tokens), nil
}
