package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chain-credentials/issuer-api/services"
	"github.com/chain-credentials/issuer-api/statuslist"
)

const (
	signerRequestTimeout = 30 * time.Second

	// The maximum size of a signer gateway response body.
	maxSignerBodySize = 10 * 1024 * 1024
)

// SignerClient talks to the signer/ledger proxy: the service that claims
// status list slots, serves status list documents, and builds the unsigned
// transactions this service signs and submits.
type SignerClient struct {
	url    string
	client *http.Client
}

func NewSignerClient(url string) *SignerClient {
	return &SignerClient{
		url: url,
		client: &http.Client{
			Timeout: signerRequestTimeout,
		},
	}
}

// request performs a JSON call against the gateway and returns the raw
// response body. Transaction-building endpoints return unsigned transaction
// bytes directly; the rest return JSON documents.
func (c *SignerClient) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
		return nil, fmt.Errorf("signer gateway %s %s failed with status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}

type registerResponse struct {
	FileID     string `json:"fileId"`
	StatusInfo struct {
		StatusListIndex int64 `json:"statusListIndex"`
	} `json:"statusInfo"`
}

func (c *SignerClient) RegisterStatusSlot(ctx context.Context, issuerDID string) (string, int64, error) {
	raw, err := c.request(ctx, http.MethodPost, "/did/register", map[string]string{
		"issuerDID": issuerDID,
	})
	if err != nil {
		return "", 0, err
	}
	var resp registerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", 0, fmt.Errorf("malformed register response: %w", err)
	}
	return resp.FileID, resp.StatusInfo.StatusListIndex, nil
}

func (c *SignerClient) MintTransaction(ctx context.Context, tokenID, cid string) ([]byte, error) {
	return c.request(ctx, http.MethodPost, "/hts/mint/nft", map[string]string{
		"token_id": tokenID,
		"cid":      cid,
	})
}

func (c *SignerClient) TransferTransaction(ctx context.Context, req services.TransferRequest) ([]byte, error) {
	return c.request(ctx, http.MethodPost, "/hts/transfer/nft", map[string]interface{}{
		"token_id":      req.TokenID,
		"serial_number": req.Serial,
		"sender_id":     req.SenderID,
		"receiver_id":   req.WalletID,
		"associate":     req.Associate,
	})
}

func (c *SignerClient) FreezeTransaction(ctx context.Context, tokenID, walletID string) ([]byte, error) {
	return c.request(ctx, http.MethodPost, "/hts/freeze/"+tokenID, map[string]string{
		"walletId": walletID,
	})
}

func (c *SignerClient) UnfreezeTransaction(ctx context.Context, tokenID, walletID string) ([]byte, error) {
	return c.request(ctx, http.MethodPost, "/hts/unfreeze/"+tokenID, map[string]string{
		"walletId": walletID,
	})
}

func (c *SignerClient) WipeTransaction(ctx context.Context, tokenID, serial, walletID string) ([]byte, error) {
	return c.request(ctx, http.MethodPost, "/hts/wipe/nft", map[string]string{
		"token_id":      tokenID,
		"serial_number": serial,
		"account_id":    walletID,
	})
}

func (c *SignerClient) UpdateStatus(ctx context.Context, fileID string, index int64, status statuslist.Status) error {
	path := fmt.Sprintf("/did/status/%s/%d", fileID, index)
	_, err := c.request(ctx, http.MethodPut, path, map[string]string{
		"status": string(status),
	})
	return err
}

type statusListResponse struct {
	CredentialSubject struct {
		EncodedList string `json:"encodedList"`
	} `json:"credentialSubject"`
}

func (c *SignerClient) StatusList(ctx context.Context, fileID string) (string, error) {
	raw, err := c.request(ctx, http.MethodGet, "/did/status/"+fileID, nil)
	if err != nil {
		return "", err
	}
	var resp statusListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("malformed status list response: %w", err)
	}
	return resp.CredentialSubject.EncodedList, nil
}
