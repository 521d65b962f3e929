package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/chain-credentials/issuer-api/database"
	"github.com/chain-credentials/issuer-api/metrics"
	"github.com/chain-credentials/issuer-api/models"
	"github.com/chain-credentials/issuer-api/statuslist"
	"github.com/chain-credentials/issuer-api/util"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// fakeSigner is an in-memory signer gateway. Transaction builders encode
// the operation into the returned bytes so fakeLedger can interpret them
// on submit. It also keeps the status list slots it has handed out.
type fakeSigner struct {
	mu sync.Mutex

	fileID    string
	nextIndex int64
	statuses  map[int64]statuslist.Status

	registerCalls int
	buildCalls    map[string]int
	updateCalls   int
	lastTransfer  TransferRequest

	registerErr error
	buildErr    map[string]error
	updateErr   error
	statusErr   error
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{
		fileID:     "0.0.7777",
		statuses:   make(map[int64]statuslist.Status),
		buildCalls: make(map[string]int),
		buildErr:   make(map[string]error),
	}
}

func (f *fakeSigner) RegisterStatusSlot(ctx context.Context, issuerDID string) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerErr != nil {
		return "", 0, f.registerErr
	}
	index := f.nextIndex
	// Entries are two bits wide.
	f.nextIndex += 2
	f.statuses[index] = statuslist.Active
	return f.fileID, index, nil
}

func (f *fakeSigner) build(op string, fields ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildCalls[op]++
	if err := f.buildErr[op]; err != nil {
		return nil, err
	}
	return []byte(strings.Join(append([]string{op}, fields...), "|")), nil
}

func (f *fakeSigner) MintTransaction(ctx context.Context, tokenID, cid string) ([]byte, error) {
	return f.build("mint", tokenID, cid)
}

func (f *fakeSigner) TransferTransaction(ctx context.Context, req TransferRequest) ([]byte, error) {
	f.mu.Lock()
	f.lastTransfer = req
	f.mu.Unlock()
	return f.build("transfer", req.TokenID, req.Serial, req.SenderID, req.WalletID, strconv.FormatBool(req.Associate))
}

func (f *fakeSigner) FreezeTransaction(ctx context.Context, tokenID, walletID string) ([]byte, error) {
	return f.build("freeze", tokenID, walletID)
}

func (f *fakeSigner) UnfreezeTransaction(ctx context.Context, tokenID, walletID string) ([]byte, error) {
	return f.build("unfreeze", tokenID, walletID)
}

func (f *fakeSigner) WipeTransaction(ctx context.Context, tokenID, serial, walletID string) ([]byte, error) {
	return f.build("wipe", tokenID, serial, walletID)
}

func (f *fakeSigner) UpdateStatus(ctx context.Context, fileID string, index int64, status statuslist.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.statuses[index] = status
	return nil
}

var statusBits = map[statuslist.Status]byte{
	statuslist.Active:    0,
	statuslist.Resumed:   1,
	statuslist.Suspended: 2,
	statuslist.Revoked:   3,
}

// StatusList renders the slot map as a gzip+base64url encoded bitstring,
// the same format the codec decodes.
func (f *fakeSigner) StatusList(ctx context.Context, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return "", f.statusErr
	}

	var maxIndex int64
	for index := range f.statuses {
		if index > maxIndex {
			maxIndex = index
		}
	}
	raw := make([]byte, maxIndex/8+1)
	for index, status := range f.statuses {
		value := statusBits[status]
		raw[index/8] |= (value >> 1) << (7 - index%8)
		raw[(index+1)/8] |= (value & 1) << (7 - (index+1)%8)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// fakeLedger interprets the payloads built by fakeSigner and tracks asset
// ownership and freeze state per (token, wallet).
type fakeLedger struct {
	mu sync.Mutex

	nextSerial int
	owners     map[string]string
	freeze     map[string]FreezeState
	tokenCount map[string]int

	attempts      map[string]int
	submitted     []string
	submitErr     map[string]error
	receiptStatus map[string]string

	// Called with the operation name before a submission is processed.
	// Lets tests interleave other service calls mid-flow.
	beforeSubmit func(op string)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		nextSerial:    1,
		owners:        make(map[string]string),
		freeze:        make(map[string]FreezeState),
		tokenCount:    make(map[string]int),
		attempts:      make(map[string]int),
		submitErr:     make(map[string]error),
		receiptStatus: make(map[string]string),
	}
}

func assetKey(tokenID, serial string) string {
	return tokenID + "/" + serial
}

func pairKey(tokenID, walletID string) string {
	return tokenID + "@" + walletID
}

func (f *fakeLedger) Submit(ctx context.Context, body, signature []byte) (*Receipt, error) {
	if len(signature) != 65 {
		return nil, fmt.Errorf("unexpected signature length %d", len(signature))
	}

	fields := strings.Split(string(body), "|")
	op := fields[0]

	if f.beforeSubmit != nil {
		f.beforeSubmit(op)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[op]++
	if err := f.submitErr[op]; err != nil {
		return nil, err
	}
	if status, ok := f.receiptStatus[op]; ok {
		return &Receipt{Status: status}, nil
	}

	receipt := &Receipt{Status: ReceiptSuccess}
	switch op {
	case "mint":
		serial := strconv.Itoa(f.nextSerial)
		f.nextSerial++
		f.owners[assetKey(fields[1], serial)] = "treasury"
		receipt.Serial = serial
	case "transfer":
		tokenID, serial, walletID := fields[1], fields[2], fields[4]
		f.owners[assetKey(tokenID, serial)] = walletID
		f.freeze[pairKey(tokenID, walletID)] = Unfrozen
	case "freeze":
		f.freeze[pairKey(fields[1], fields[2])] = Frozen
	case "unfreeze":
		f.freeze[pairKey(fields[1], fields[2])] = Unfrozen
	case "wipe":
		delete(f.owners, assetKey(fields[1], fields[2]))
	}

	f.submitted = append(f.submitted, op)
	return receipt, nil
}

func (f *fakeLedger) AssetOwner(ctx context.Context, tokenID, serial string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[assetKey(tokenID, serial)], nil
}

func (f *fakeLedger) FreezeStatus(ctx context.Context, tokenID, walletID string) (FreezeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.freeze[pairKey(tokenID, walletID)]
	if !ok {
		return NotAssociated, nil
	}
	return state, nil
}

func (f *fakeLedger) TokenCount(ctx context.Context, walletID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCount[walletID], nil
}

// submittedOps returns a copy of the successful submissions so far.
func (f *fakeLedger) submittedOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

type fakePinner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePinner) PinJSON(ctx context.Context, name string, content interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "cid-" + name, nil
}

type fakeIdentity struct {
	mu  sync.Mutex
	err error
}

func (f *fakeIdentity) WalletID(ctx context.Context, owner string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "wallet-" + owner, nil
}

type testEnv struct {
	svc      *Service
	signer   *fakeSigner
	ledger   *fakeLedger
	pinner   *fakePinner
	identity *fakeIdentity
	issuers  *models.IssuerRegistry
	clock    clockwork.Clock
}

// Create a new service using an in-memory database and fake collaborators.
// Each test gets its own shared-cache database so the stdlib pool can open
// extra connections without seeing a brand new empty database.
func setupTestEnv(t *testing.T, clock clockwork.Clock) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("Could not open database: %v", err)
	}
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() { db.Close() })

	logger, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		t.Fatalf("Could not create logger: %v", err)
	}

	wallet, err := util.NewWallet()
	if err != nil {
		t.Fatalf("Could not create wallet: %v", err)
	}

	cipher, err := util.NewAESCipher(bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatalf("Could not create cipher: %v", err)
	}

	env := &testEnv{
		signer:   newFakeSigner(),
		ledger:   newFakeLedger(),
		pinner:   &fakePinner{},
		identity: &fakeIdentity{},
		issuers:  models.NewIssuerRegistry(),
		clock:    clock,
	}
	env.svc = NewService(&ServiceConfig{
		DB:       db,
		Signer:   env.signer,
		Ledger:   env.ledger,
		Pinner:   env.pinner,
		Cipher:   cipher,
		Identity: env.identity,
		Issuers:  env.issuers,
		Wallet:   wallet,
		Logger:   logger,
		Clock:    clock,
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})
	if err := env.svc.Init(); err != nil {
		t.Fatalf("Could not initialize service: %v", err)
	}
	t.Cleanup(env.svc.Deinit)

	return env
}

// Register a test issuer and mark the registry fresh.
func (env *testEnv) addIssuer(id string) models.Issuer {
	issuer := models.Issuer{
		ID:        id,
		DID:       "did:example:" + id,
		TokenID:   "0.0.500",
		AccountID: "0.0.42",
		ImageURL:  "https://img.example/" + id + ".png",
	}
	env.issuers.Add([]models.Issuer{issuer})
	env.issuers.LastUpdated = env.clock.Now()
	return issuer
}
