package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const pinRequestTimeout = 60 * time.Second

// PinClient pins credential metadata documents to the external metadata
// store and returns the content identifier used to build the asset URI.
type PinClient struct {
	url    string
	token  string
	client *http.Client
}

func NewPinClient(url, token string) *PinClient {
	return &PinClient{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: pinRequestTimeout,
		},
	}
}

type pinRequest struct {
	PinataContent  interface{} `json:"pinataContent"`
	PinataMetadata struct {
		Name string `json:"name"`
	} `json:"pinataMetadata"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

func (c *PinClient) PinJSON(ctx context.Context, name string, content interface{}) (string, error) {
	body := pinRequest{PinataContent: content}
	body.PinataMetadata.Name = name
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/pinning/pinJSONToIPFS", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSignerBodySize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("pin request failed with status %d", resp.StatusCode)
	}

	var pinned pinResponse
	if err := json.Unmarshal(raw, &pinned); err != nil {
		return "", fmt.Errorf("malformed pin response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("pin response contained no content identifier")
	}
	return pinned.IpfsHash, nil
}
