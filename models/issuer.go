package models

import (
	"sync"
	"time"
)

// Issuer identifies a credential issuer: its status-list DID, the NFT
// collection it mints into, the custody account holding unminted and
// undelivered assets, and an image reference for asset metadata.
// Read-only to the service layer.
type Issuer struct {
	ID        string `json:"id"`
	DID       string `json:"did"`
	TokenID   string `json:"tokenId"`
	AccountID string `json:"accountId"`
	ImageURL  string `json:"imageUrl"`
}

// IssuerRegistry contains the currently known issuers.
// It is periodically updated by UpdateIssuersTask.
type IssuerRegistry struct {
	registry    map[string]Issuer
	lock        sync.RWMutex
	LastUpdated time.Time
}

func NewIssuerRegistry() *IssuerRegistry {
	return &IssuerRegistry{
		registry: make(map[string]Issuer),
	}
}

func (r *IssuerRegistry) Add(issuers []Issuer) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, issuer := range issuers {
		r.registry[issuer.ID] = issuer
	}
}

func (r *IssuerRegistry) Get(id string) (Issuer, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	issuer, ok := r.registry[id]
	return issuer, ok
}

func (r *IssuerRegistry) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.registry = make(map[string]Issuer)
}
