package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/chain-credentials/issuer-api/metrics"
	"github.com/chain-credentials/issuer-api/models"
	"github.com/chain-credentials/issuer-api/statuslist"
	"github.com/chain-credentials/issuer-api/util"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// The maximum age of the issuer registry before being considered outdated.
	issuerRegistryMaxAge = 1 * time.Hour
)

type ValidationError struct {
	msg string
}

func (v *ValidationError) Error() string {
	return v.msg
}

func (v *ValidationError) Is(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

type NotFoundError struct {
	msg string
}

func (n *NotFoundError) Error() string {
	return n.msg
}

func (n *NotFoundError) Is(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// TransactionError reports a ledger receipt with a non-success status.
// The step did not persist any local state and is safe to retry.
type TransactionError struct {
	Step   string
	Status string
}

func (t *TransactionError) Error() string {
	return fmt.Sprintf("step %s: transaction failed with receipt status %s", t.Step, t.Status)
}

func (t *TransactionError) Is(err error) bool {
	_, ok := err.(*TransactionError)
	return ok
}

// RemoteOperationError reports a transport or server-side failure from the
// signer gateway, ledger, or metadata store. The step did not persist any
// local state and is safe to retry.
type RemoteOperationError struct {
	Step  string
	cause error
}

func (r *RemoteOperationError) Error() string {
	return fmt.Sprintf("step %s: remote operation failed: %v", r.Step, r.cause)
}

func (r *RemoteOperationError) Unwrap() error {
	return r.cause
}

func (r *RemoteOperationError) Is(err error) bool {
	_, ok := err.(*RemoteOperationError)
	return ok
}

// Receipt is the ledger's acknowledgement of a submitted transaction.
// Serial is only populated for mint transactions.
type Receipt struct {
	Status string
	Serial string
}

// ReceiptSuccess is the receipt status reported for accepted transactions.
const ReceiptSuccess = "SUCCESS"

// FreezeState is the remote freeze status of a (token, account) pair.
type FreezeState string

const (
	Frozen        FreezeState = "FROZEN"
	Unfrozen      FreezeState = "UNFROZEN"
	NotAssociated FreezeState = "NOT_ASSOCIATED"
)

// TransferRequest describes an NFT transfer from issuer custody to a holder.
// Associate requests an explicit token association for accounts that have
// exhausted their automatic association slots.
type TransferRequest struct {
	TokenID   string
	Serial    string
	SenderID  string
	WalletID  string
	Associate bool
}

// SignerGateway builds unsigned transactions and manages status list slots.
// Transactions it returns must be signed locally and submitted via Ledger.
type SignerGateway interface {
	RegisterStatusSlot(ctx context.Context, issuerDID string) (fileID string, index int64, err error)
	MintTransaction(ctx context.Context, tokenID, cid string) ([]byte, error)
	TransferTransaction(ctx context.Context, req TransferRequest) ([]byte, error)
	FreezeTransaction(ctx context.Context, tokenID, walletID string) ([]byte, error)
	UnfreezeTransaction(ctx context.Context, tokenID, walletID string) ([]byte, error)
	WipeTransaction(ctx context.Context, tokenID, serial, walletID string) ([]byte, error)
	UpdateStatus(ctx context.Context, fileID string, index int64, status statuslist.Status) error
	StatusList(ctx context.Context, fileID string) (encodedList string, err error)
}

// Ledger submits signed transactions and answers read-side asset queries.
type Ledger interface {
	Submit(ctx context.Context, body, signature []byte) (*Receipt, error)
	AssetOwner(ctx context.Context, tokenID, serial string) (walletID string, err error)
	FreezeStatus(ctx context.Context, tokenID, walletID string) (FreezeState, error)
	TokenCount(ctx context.Context, walletID string) (int, error)
}

// Pinner stores credential metadata and returns a content identifier.
type Pinner interface {
	PinJSON(ctx context.Context, name string, content interface{}) (cid string, err error)
}

// MetadataCipher encrypts credential metadata before pinning.
type MetadataCipher interface {
	Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error)
}

// IdentityResolver resolves a holder identifier to its wallet account.
type IdentityResolver interface {
	WalletID(ctx context.Context, owner string) (string, error)
}

// ServiceConfig contains the configuration for a Service.
type ServiceConfig struct {
	DB       *sql.DB
	Signer   SignerGateway
	Ledger   Ledger
	Pinner   Pinner
	Cipher   MetadataCipher
	Identity IdentityResolver
	Issuers  *models.IssuerRegistry
	Wallet   *util.Wallet
	Logger   *zap.Logger
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
}

// Service owns the credential lifecycle state machine. It decides which
// asset steps remain for a credential, executes them in order against the
// signer gateway and ledger, and persists the credential record after every
// completed step so that any interrupted flow can resume.
// It is called by the API handlers and background tasks.
type Service struct {
	db                 *sql.DB
	insertCredStmt     *sql.Stmt
	updateCredStmt     *sql.Stmt
	getCredByPairStmt  *sql.Stmt
	getCredByIDStmt    *sql.Stmt
	listUnburnedStmt   *sql.Stmt

	signer   SignerGateway
	ledger   Ledger
	pinner   Pinner
	cipher   MetadataCipher
	identity IdentityResolver
	issuers  *models.IssuerRegistry
	wallet   *util.Wallet

	// Per-(owner, issuer) locks serializing issue/revoke for the same pair.
	// Entries are retained for the process lifetime; bounded by the number
	// of distinct pairs served.
	pairMu    sync.Mutex
	pairLocks map[string]*sync.Mutex

	m      *metrics.Metrics
	logger *zap.Logger

	clock clockwork.Clock
}

func NewService(config *ServiceConfig) *Service {
	return &Service{
		db:        config.DB,
		signer:    config.Signer,
		ledger:    config.Ledger,
		pinner:    config.Pinner,
		cipher:    config.Cipher,
		identity:  config.Identity,
		issuers:   config.Issuers,
		wallet:    config.Wallet,
		pairLocks: make(map[string]*sync.Mutex),
		m:         config.Metrics,
		logger:    config.Logger,
		clock:     config.Clock,
	}
}

func (s *Service) Init() error {
	if err := s.createTables(); err != nil {
		return err
	}
	return s.prepareStatements()
}

func (s *Service) Deinit() {
	// Close prepared statements
	for _, stmt := range []**sql.Stmt{
		&s.insertCredStmt,
		&s.updateCredStmt,
		&s.getCredByPairStmt,
		&s.getCredByIDStmt,
		&s.listUnburnedStmt,
	} {
		if *stmt == nil {
			continue
		}
		(*stmt).Close()
		*stmt = nil
	}
}

// lockPair acquires the mutual-exclusion scope for one (owner, issuer)
// pair. Operations across different pairs proceed in parallel; two
// concurrent resumptions of the same pair would otherwise both attempt
// the same mint.
func (s *Service) lockPair(owner, issuer string) func() {
	key := owner + "\x00" + issuer
	s.pairMu.Lock()
	m, ok := s.pairLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.pairLocks[key] = m
	}
	s.pairMu.Unlock()
	m.Lock()
	return m.Unlock
}

// resolveIssuer fetches an issuer from the registry, refusing to act on a
// stale registry the same way a stale node registry refuses access.
func (s *Service) resolveIssuer(id string) (models.Issuer, error) {
	if s.clock.Now().After(s.issuers.LastUpdated.Add(issuerRegistryMaxAge)) {
		s.logger.Error("Issuer registry is too old, refusing operation",
			zap.String("issuer", id))
		return models.Issuer{}, &ValidationError{"issuer registry is out of date"}
	}
	issuer, ok := s.issuers.Get(id)
	if !ok {
		return models.Issuer{}, &NotFoundError{fmt.Sprintf("unknown issuer %q", id)}
	}
	return issuer, nil
}

// resolveWallet resolves the holder's ledger account.
func (s *Service) resolveWallet(ctx context.Context, owner string) (string, error) {
	walletID, err := s.identity.WalletID(ctx, owner)
	if err != nil {
		s.logger.Warn("Failed to resolve holder wallet",
			zap.String("owner", owner),
			zap.Error(err))
		return "", &NotFoundError{fmt.Sprintf("no wallet found for holder %q", owner)}
	}
	return walletID, nil
}
