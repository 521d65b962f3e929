package services

import (
	"context"
	"testing"
	"time"

	"github.com/chain-credentials/issuer-api/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Insert a credential directly at a given checkpoint, as if an earlier
// issue attempt had been interrupted there.
func insertTestCredential(t *testing.T, env *testEnv, owner, issuer string, status models.InternalStatus, serial string) *models.Credential {
	t.Helper()

	now := env.clock.Now()
	cred := &models.Credential{
		ID:               uuid.NewString(),
		Owner:            owner,
		Issuer:           issuer,
		StatusListFileID: env.signer.fileID,
		StatusListIndex:  0,
		AssetSerial:      serial,
		InternalStatus:   status,
		ChainStatus:      models.ChainActive,
		ExpirationDate:   now.Add(defaultValidityWindow),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := env.svc.insertCredential(context.Background(), cred); err != nil {
		t.Fatalf("Could not insert credential: %v", err)
	}
	return cred
}

func TestFreezeSkipsWhenAlreadyFrozen(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	env := setupTestEnv(t, clock)
	issuer := env.addIssuer("isr1")
	ctx := context.Background()

	// A delivered credential whose asset the ledger already reports frozen.
	insertTestCredential(t, env, "u1", "isr1", models.StatusDelivered, "1")
	env.ledger.freeze[pairKey(issuer.TokenID, "wallet-u1")] = Frozen

	cred, err := env.svc.IssueCredential(ctx, IssueRequest{Owner: "u1", Issuer: "isr1"})
	if err != nil {
		t.Fatalf("Could not resume issue: %v", err)
	}

	if cred.InternalStatus != models.StatusActive {
		t.Fatalf("Expected internal status ACTIVE, got %s", cred.InternalStatus)
	}
	// The checkpoint advanced without submitting anything.
	if attempts := env.ledger.attempts["freeze"]; attempts != 0 {
		t.Fatalf("Expected 0 freeze submissions, got %d", attempts)
	}
	if ops := env.ledger.submittedOps(); len(ops) != 0 {
		t.Fatalf("Expected no submissions, got %v", ops)
	}
}

func TestDeliverSkipsWhenWalletAlreadyHoldsAsset(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	env := setupTestEnv(t, clock)
	issuer := env.addIssuer("isr1")
	ctx := context.Background()

	// A minted credential whose asset already sits in the holder's wallet,
	// e.g. because a previous attempt crashed between transfer and persist.
	insertTestCredential(t, env, "u1", "isr1", models.StatusMinted, "5")
	env.ledger.owners[assetKey(issuer.TokenID, "5")] = "wallet-u1"

	cred, err := env.svc.IssueCredential(ctx, IssueRequest{Owner: "u1", Issuer: "isr1"})
	if err != nil {
		t.Fatalf("Could not resume issue: %v", err)
	}

	if cred.InternalStatus != models.StatusActive {
		t.Fatalf("Expected internal status ACTIVE, got %s", cred.InternalStatus)
	}
	if attempts := env.ledger.attempts["transfer"]; attempts != 0 {
		t.Fatalf("Expected 0 transfer submissions, got %d", attempts)
	}
	// The freeze still runs.
	if attempts := env.ledger.attempts["freeze"]; attempts != 1 {
		t.Fatalf("Expected 1 freeze submission, got %d", attempts)
	}
}

func TestDeliverAssociatesWhenSlotsExhausted(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	env := setupTestEnv(t, clock)
	env.addIssuer("isr1")
	ctx := context.Background()

	// The holder's wallet already carries enough tokens to have used up
	// its automatic association slots.
	env.ledger.tokenCount["wallet-u1"] = autoAssociateThreshold

	if _, err := env.svc.IssueCredential(ctx, IssueRequest{Owner: "u1", Issuer: "isr1"}); err != nil {
		t.Fatalf("Could not issue credential: %v", err)
	}

	if !env.signer.lastTransfer.Associate {
		t.Fatal("Expected the transfer to request an explicit association")
	}
}

func TestDeliverDoesNotAssociateBelowThreshold(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	env := setupTestEnv(t, clock)
	env.addIssuer("isr1")
	ctx := context.Background()

	env.ledger.tokenCount["wallet-u1"] = autoAssociateThreshold - 1

	if _, err := env.svc.IssueCredential(ctx, IssueRequest{Owner: "u1", Issuer: "isr1"}); err != nil {
		t.Fatalf("Could not issue credential: %v", err)
	}

	if env.signer.lastTransfer.Associate {
		t.Fatal("Expected the transfer to rely on automatic association")
	}
}

func TestUnfreezeSkips(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	env := setupTestEnv(t, clock)
	issuer := env.addIssuer("isr1")
	ctx := context.Background()

	cred := insertTestCredential(t, env, "u1", "isr1", models.StatusActive, "1")

	tests := []struct {
		name     string
		state    FreezeState
		attempts int
	}{
		{"not_associated", NotAssociated, 0},
		{"already_unfrozen", Unfrozen, 0},
		{"frozen", Frozen, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := pairKey(issuer.TokenID, "wallet-u1")
			if tt.state == NotAssociated {
				delete(env.ledger.freeze, key)
			} else {
				env.ledger.freeze[key] = tt.state
			}
			before := env.ledger.attempts["unfreeze"]

			if err := env.svc.unfreeze(ctx, cred, issuer, "wallet-u1"); err != nil {
				t.Fatalf("Unfreeze failed: %v", err)
			}
			if got := env.ledger.attempts["unfreeze"] - before; got != tt.attempts {
				t.Fatalf("Expected %d unfreeze submissions, got %d", tt.attempts, got)
			}
		})
	}
}

func TestMintSkipsPastPending(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	env := setupTestEnv(t, clock)
	issuer := env.addIssuer("isr1")
	ctx := context.Background()

	cred := insertTestCredential(t, env, "u1", "isr1", models.StatusMinted, "9")

	if err := env.svc.mint(ctx, cred, issuer, nil); err != nil {
		t.Fatalf("Mint guard failed: %v", err)
	}
	if env.pinner.calls != 0 {
		t.Fatalf("Expected 0 pin calls, got %d", env.pinner.calls)
	}
	if env.ledger.attempts["mint"] != 0 {
		t.Fatalf("Expected 0 mint submissions, got %d", env.ledger.attempts["mint"])
	}
	if cred.AssetSerial != "9" {
		t.Fatalf("Serial must never be reassigned, got %q", cred.AssetSerial)
	}
}
