// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyserver

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/clock"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
	"github.com/bureau-foundation/pdw/lib/ledger/memledger"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/session"
	"github.com/bureau-foundation/pdw/lib/shamir"
	"github.com/bureau-foundation/pdw/lib/signer"
)

var (
	packageID  = address.MustParse("0x5ea1")
	registryID = address.MustParse("0x6e6")
	clockID    = address.MustParse("0x6")
	epoch      = time.UnixMilli(1_700_000_000_000)
)

type fixture struct {
	clock    *clock.FakeClock
	ledger   *memledger.Ledger
	builder  *authtx.Builder
	server   *Server
	sessions *session.Store
	alice    *signer.Ed25519
	bob      *signer.Ed25519
	identity []byte
	share    shamir.Share
	wrapped  []byte
}

func newSigner(t *testing.T, fill byte) *signer.Ed25519 {
	t.Helper()
	s, err := signer.FromSeed(bytes.Repeat([]byte{fill}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := clock.Fake(epoch)
	f := &fixture{
		clock:    fake,
		ledger:   memledger.New(memledger.Config{PackageID: packageID, RegistryID: registryID, ClockID: clockID, Clock: fake}),
		builder:  authtx.NewBuilder(authtx.Config{PackageID: packageID, RegistryID: registryID, ClockID: clockID}),
		sessions: session.NewStore(session.Config{PackageID: packageID, Clock: fake}),
		alice:    newSigner(t, 1),
		bob:      newSigner(t, 2),
	}
	t.Cleanup(func() { f.sessions.Close() })

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	f.server, err = New(Config{ID: "ks-1", Keypair: keypair, PackageID: packageID, Ledger: f.ledger, Clock: fake})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.identity = append(f.alice.Address().Bytes(), 0x01, 0x02, 0x03)
	f.share = shamir.Share{Index: 1, Value: []byte{0xde, 0xad, 0xbe, 0xef}}
	f.wrapped, err = WrapShare(f.server.PublicKey(), f.identity, f.share)
	if err != nil {
		t.Fatalf("WrapShare: %v", err)
	}
	return f
}

func (f *fixture) proof(t *testing.T, sign *signer.Ed25519) *session.Proof {
	t.Helper()
	proof, err := f.sessions.GetOrCreate(context.Background(), sign.Address(), 10*time.Minute, sign)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return proof
}

func (f *fixture) transaction(t *testing.T, identity []byte, requestor authtx.Requestor, scope grant.Scope) []byte {
	t.Helper()
	transaction, err := f.builder.Build(identity, requestor, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := transaction.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func (f *fixture) request(proof *session.Proof, transaction []byte) *FetchRequest {
	return &FetchRequest{
		Identity:     f.identity,
		ShareIndex:   f.share.Index,
		WrappedShare: f.wrapped,
		Certificate:  *proof.Certificate(),
		Transaction:  transaction,
	}
}

func TestFetchKey_OwnerReleasesShare(t *testing.T) {
	f := newFixture(t)
	proof := f.proof(t, f.alice)
	request := f.request(proof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0))

	response, err := f.server.FetchKey(context.Background(), request)
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if response.ServerID != "ks-1" || response.ShareIndex != 1 {
		t.Errorf("response = %+v", response)
	}
	opened, err := proof.OpenShare(response.EncryptedShare)
	if err != nil {
		t.Fatalf("OpenShare: %v", err)
	}
	if !bytes.Equal(opened, f.share.Value) {
		t.Errorf("released share = %x, want %x", opened, f.share.Value)
	}
}

func TestFetchKey_Denied(t *testing.T) {
	f := newFixture(t)
	proof := f.proof(t, f.bob)
	request := f.request(proof, f.transaction(t, f.identity, authtx.Wallet(f.bob.Address()), grant.ScopeRead))
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrDenied) {
		t.Errorf("FetchKey without grant error = %v, want ErrDenied", err)
	}
}

func TestFetchKey_GrantedWallet(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	g := grant.NewWallet(f.alice.Address(), f.bob.Address(), grant.ScopeRead, f.alice.Address(), now, now.Add(time.Hour))
	grantTransaction, err := f.builder.BuildGrant(g)
	if err != nil {
		t.Fatalf("BuildGrant: %v", err)
	}
	data, err := grantTransaction.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if result, err := f.ledger.Submit(context.Background(), data, f.alice); err != nil || result.Status != ledger.StatusSuccess {
		t.Fatalf("grant: %+v, %v", result, err)
	}

	proof := f.proof(t, f.bob)
	request := f.request(proof, f.transaction(t, f.identity, authtx.Wallet(f.bob.Address()), grant.ScopeRead))
	response, err := f.server.FetchKey(context.Background(), request)
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if _, err := proof.OpenShare(response.EncryptedShare); err != nil {
		t.Errorf("OpenShare: %v", err)
	}
}

func TestFetchKey_ProofChecks(t *testing.T) {
	f := newFixture(t)
	aliceProof := f.proof(t, f.alice)
	bobProof := f.proof(t, f.bob)
	aliceTransaction := f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0)

	// Bob's session cannot carry Alice's transaction.
	if _, err := f.server.FetchKey(context.Background(), f.request(bobProof, aliceTransaction)); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("mismatched sender error = %v, want ErrInvalidProof", err)
	}

	tampered := f.request(aliceProof, aliceTransaction)
	tampered.Certificate.Signature = bytes.Clone(tampered.Certificate.Signature)
	tampered.Certificate.Signature[10] ^= 0x01
	if _, err := f.server.FetchKey(context.Background(), tampered); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("tampered certificate error = %v, want ErrInvalidProof", err)
	}

	f.clock.Advance(11 * time.Minute)
	if _, err := f.server.FetchKey(context.Background(), f.request(aliceProof, aliceTransaction)); !errors.Is(err, ErrInvalidProof) || !errors.Is(err, session.ErrExpired) {
		t.Errorf("expired certificate error = %v, want ErrInvalidProof wrapping ErrExpired", err)
	}
}

func TestFetchKey_ForeignPackageSession(t *testing.T) {
	f := newFixture(t)
	foreign := session.NewStore(session.Config{PackageID: address.MustParse("0xf00"), Clock: f.clock})
	defer foreign.Close()
	proof, err := foreign.Create(context.Background(), f.alice.Address(), time.Minute, f.alice)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	request := f.request(proof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0))
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("foreign package session error = %v, want ErrInvalidProof", err)
	}
}

func TestFetchKey_ShareBinding(t *testing.T) {
	f := newFixture(t)
	proof := f.proof(t, f.alice)

	// A transaction for other content cannot unlock this share.
	other := append(f.alice.Address().Bytes(), 0x09)
	request := f.request(proof, f.transaction(t, other, authtx.Legacy(f.alice.Address()), 0))
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("transaction for other identity error = %v, want ErrInvalidRequest", err)
	}

	// Nor can a share wrapped for other content be presented under
	// this identity.
	foreignShare, err := WrapShare(f.server.PublicKey(), other, f.share)
	if err != nil {
		t.Fatalf("WrapShare: %v", err)
	}
	request = f.request(proof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0))
	request.WrappedShare = foreignShare
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("share bound to other identity error = %v, want ErrInvalidRequest", err)
	}

	request = f.request(proof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0))
	request.ShareIndex = 2
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("mismatched share index error = %v, want ErrInvalidRequest", err)
	}
}

func TestFetchKey_MalformedRequests(t *testing.T) {
	f := newFixture(t)
	proof := f.proof(t, f.alice)

	request := f.request(proof, []byte{0x01})
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("garbage transaction error = %v, want ErrInvalidRequest", err)
	}

	request = f.request(proof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0))
	request.Identity = request.Identity[:8]
	if _, err := f.server.FetchKey(context.Background(), request); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("short identity error = %v, want ErrInvalidRequest", err)
	}

	revoke, err := f.builder.BuildRevoke(f.alice.Address(), f.alice.Address(), f.bob.Address().String())
	if err != nil {
		t.Fatalf("BuildRevoke: %v", err)
	}
	data, err := revoke.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if _, err := f.server.FetchKey(context.Background(), f.request(proof, data)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("non-predicate transaction error = %v, want ErrInvalidRequest", err)
	}
}

// brokenLedger fails every dry run.
type brokenLedger struct {
	ledger.Client
}

func (brokenLedger) DryRun(ctx context.Context, transaction []byte) (*ledger.DryRunResult, error) {
	return nil, errors.New("connection refused")
}

func TestFetchKey_LedgerUnavailable(t *testing.T) {
	f := newFixture(t)
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	server, err := New(Config{ID: "ks-2", Keypair: keypair, PackageID: packageID, Ledger: brokenLedger{}, Clock: f.clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	proof := f.proof(t, f.alice)
	request := f.request(proof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0))
	if _, err := server.FetchKey(context.Background(), request); !errors.Is(err, ErrUnavailable) {
		t.Errorf("broken ledger error = %v, want ErrUnavailable", err)
	}
}

func TestNew_RequiresConfiguration(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	valid := Config{ID: "ks", Keypair: keypair, PackageID: packageID, Ledger: brokenLedger{}}

	for name, mutate := range map[string]func(*Config){
		"id":      func(c *Config) { c.ID = "" },
		"keypair": func(c *Config) { c.Keypair = nil },
		"package": func(c *Config) { c.PackageID = address.Zero },
		"ledger":  func(c *Config) { c.Ledger = nil },
	} {
		config := valid
		mutate(&config)
		if _, err := New(config); err == nil {
			t.Errorf("New without %s succeeded", name)
		}
	}
}

func TestHTTP(t *testing.T) {
	f := newFixture(t)
	httpServer := httptest.NewServer(f.server.Handler())
	defer httpServer.Close()
	client := NewClient(httpServer.URL+"/", httpServer.Client())

	info, err := client.Service(context.Background())
	if err != nil {
		t.Fatalf("Service: %v", err)
	}
	if info.ID != "ks-1" || info.PublicKey != f.server.PublicKey() || info.PackageID != packageID {
		t.Errorf("Service = %+v", info)
	}

	aliceProof := f.proof(t, f.alice)
	response, err := client.FetchKey(context.Background(), f.request(aliceProof, f.transaction(t, f.identity, authtx.Legacy(f.alice.Address()), 0)))
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	opened, err := aliceProof.OpenShare(response.EncryptedShare)
	if err != nil {
		t.Fatalf("OpenShare: %v", err)
	}
	if !bytes.Equal(opened, f.share.Value) {
		t.Errorf("released share = %x, want %x", opened, f.share.Value)
	}

	bobProof := f.proof(t, f.bob)
	_, err = client.FetchKey(context.Background(), f.request(bobProof, f.transaction(t, f.identity, authtx.Wallet(f.bob.Address()), grant.ScopeRead)))
	if !errors.Is(err, ErrDenied) {
		t.Errorf("HTTP denied error = %v, want ErrDenied", err)
	}
	_, err = client.FetchKey(context.Background(), f.request(bobProof, []byte{0x01}))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("HTTP invalid request error = %v, want ErrInvalidRequest", err)
	}

	httpServer.Close()
	if _, err := client.Service(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("closed server error = %v, want ErrUnavailable", err)
	}
}
