// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/authtx"
	"github.com/bureau-foundation/pdw/lib/clock"
	"github.com/bureau-foundation/pdw/lib/envelope"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/keyserver"
	"github.com/bureau-foundation/pdw/lib/ledger/memledger"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/session"
	"github.com/bureau-foundation/pdw/lib/signer"
)

var (
	packageID  = address.MustParse("0x5ea1")
	registryID = address.MustParse("0x6e6")
	clockID    = address.MustParse("0x6")
	epoch      = time.UnixMilli(1_700_000_000_000)
)

// countingFetcher counts calls and can be switched to fail.
type countingFetcher struct {
	keyserver.Fetcher
	calls atomic.Int32
	err   error
}

func (c *countingFetcher) FetchKey(ctx context.Context, request *keyserver.FetchRequest) (*keyserver.FetchResponse, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Fetcher.FetchKey(ctx, request)
}

// hangingFetcher blocks until the context ends, like a stalled
// HTTP request.
type hangingFetcher struct{}

func (hangingFetcher) FetchKey(ctx context.Context, request *keyserver.FetchRequest) (*keyserver.FetchResponse, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", keyserver.ErrUnavailable, ctx.Err())
}

type fixture struct {
	clock     *clock.FakeClock
	ledger    *memledger.Ledger
	builder   *authtx.Builder
	sessions  *session.Store
	fetchers  []*countingFetcher
	members   []Member
	authority *Threshold
	alice     *signer.Ed25519
	bob       *signer.Ed25519
	identity  []byte
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

	for _, id := range []string{"ks-1", "ks-2", "ks-3"} {
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair: %v", err)
		}
		t.Cleanup(func() { keypair.Close() })
		server, err := keyserver.New(keyserver.Config{
			ID:        id,
			Keypair:   keypair,
			PackageID: packageID,
			Ledger:    f.ledger,
			Clock:     fake,
		})
		if err != nil {
			t.Fatalf("keyserver.New(%s): %v", id, err)
		}
		fetcher := &countingFetcher{Fetcher: server}
		f.fetchers = append(f.fetchers, fetcher)
		f.members = append(f.members, Member{ID: id, PublicKey: server.PublicKey(), Fetcher: fetcher})
	}

	var err error
	f.authority, err = NewThreshold(Config{PackageID: packageID, Members: f.members, Threshold: 2})
	if err != nil {
		t.Fatalf("NewThreshold: %v", err)
	}
	f.identity = append(f.alice.Address().Bytes(), 0x42)
	return f
}

func (f *fixture) encrypt(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	result, err := f.authority.Encrypt(context.Background(), EncryptRequest{Identity: f.identity, Plaintext: plaintext})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	result.DataKey.Close()
	return result.Ciphertext
}

func (f *fixture) proof(t *testing.T, sign *signer.Ed25519) *session.Proof {
	t.Helper()
	proof, err := f.sessions.GetOrCreate(context.Background(), sign.Address(), 10*time.Minute, sign)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return proof
}

func (f *fixture) transaction(t *testing.T, requestor authtx.Requestor, scope grant.Scope) []byte {
	t.Helper()
	transaction, err := f.builder.Build(f.identity, requestor, scope)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := transaction.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func (f *fixture) calls() []int32 {
	counts := make([]int32, len(f.fetchers))
	for i, fetcher := range f.fetchers {
		counts[i] = fetcher.calls.Load()
	}
	return counts
}

func TestThreshold_RoundTripBinary(t *testing.T) {
	f := newFixture(t)
	plaintext := []byte{0x00, 0xff, 0xfe, 0x80, 0xc3, 0x28, 0x00}

	result, err := f.authority.Encrypt(context.Background(), EncryptRequest{Identity: f.identity, Plaintext: plaintext})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	defer result.DataKey.Close()
	if result.Fingerprint != envelope.Fingerprint(result.Ciphertext) {
		t.Error("fingerprint does not match the ciphertext")
	}

	parsed, err := envelope.Parse(result.Ciphertext)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Threshold != 2 || len(parsed.Shares) != 3 {
		t.Errorf("envelope threshold %d with %d shares, want 2 of 3", parsed.Threshold, len(parsed.Shares))
	}
	if parsed.Content() != f.alice.Address() {
		t.Errorf("content = %s, want %s", parsed.Content(), f.alice.Address())
	}

	// The data key opens the envelope without the key servers.
	backup, err := parsed.Open(result.DataKey)
	if err != nil {
		t.Fatalf("Open with data key: %v", err)
	}
	if !bytes.Equal(backup, plaintext) {
		t.Errorf("backup plaintext = %x, want %x", backup, plaintext)
	}

	opened, err := f.authority.Decrypt(context.Background(), result.Ciphertext,
		f.proof(t, f.alice), f.transaction(t, authtx.Legacy(f.alice.Address()), 0))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("plaintext = %x, want %x", opened, plaintext)
	}
	if calls := f.calls(); calls[0] != 1 || calls[1] != 1 || calls[2] != 0 {
		t.Errorf("fetch calls = %v, want [1 1 0]", calls)
	}
}

func TestThreshold_ToleratesUnavailableMember(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))
	f.fetchers[0].err = fmt.Errorf("%w: connection refused", keyserver.ErrUnavailable)

	opened, err := f.authority.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.alice), f.transaction(t, authtx.Legacy(f.alice.Address()), 0))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(opened) != "diary" {
		t.Errorf("plaintext = %q", opened)
	}
	if calls := f.calls(); calls[0] != 1 || calls[1] != 1 || calls[2] != 1 {
		t.Errorf("fetch calls = %v, want [1 1 1]", calls)
	}
}

func TestThreshold_TooFewMembers(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))
	f.fetchers[0].err = fmt.Errorf("%w: connection refused", keyserver.ErrUnavailable)
	f.fetchers[2].err = fmt.Errorf("%w: ledger down", keyserver.ErrUnavailable)

	_, err := f.authority.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.alice), f.transaction(t, authtx.Legacy(f.alice.Address()), 0))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if errors.Is(err, ErrDenied) {
		t.Errorf("unavailability reported as denial: %v", err)
	}
}

func TestThreshold_DeniedStopsAtFirstRefusal(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))

	_, err := f.authority.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.bob), f.transaction(t, authtx.Wallet(f.bob.Address()), grant.ScopeRead))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("error = %v, want ErrDenied", err)
	}
	if !errors.Is(err, keyserver.ErrDenied) {
		t.Errorf("error chain lost the key server's refusal: %v", err)
	}
	if calls := f.calls(); calls[0] != 1 || calls[1] != 0 || calls[2] != 0 {
		t.Errorf("fetch calls = %v, want [1 0 0]", calls)
	}
}

func TestThreshold_ExpiredSessionIsNotDenial(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))
	proof := f.proof(t, f.alice)
	transaction := f.transaction(t, authtx.Legacy(f.alice.Address()), 0)

	f.clock.Advance(11 * time.Minute)
	_, err := f.authority.Decrypt(context.Background(), ciphertext, proof, transaction)
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("error = %v, want ErrInvalidSession", err)
	}
	if errors.Is(err, ErrDenied) {
		t.Errorf("expired session reported as denial: %v", err)
	}
	if !errors.Is(err, keyserver.ErrInvalidProof) {
		t.Errorf("error chain lost the key server's reason: %v", err)
	}
	if calls := f.calls(); calls[0] != 1 || calls[1] != 0 || calls[2] != 0 {
		t.Errorf("fetch calls = %v, want [1 0 0]", calls)
	}

	// A fresh session for the same request succeeds.
	fresh, err := f.sessions.Create(context.Background(), f.alice.Address(), 10*time.Minute, f.alice)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.authority.Decrypt(context.Background(), ciphertext, fresh, transaction); err != nil {
		t.Errorf("Decrypt with a new session: %v", err)
	}
}

func TestThreshold_InvalidRequestSkipsMember(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))
	f.fetchers[0].err = fmt.Errorf("%w: wrapped share: no identity matched", keyserver.ErrInvalidRequest)

	opened, err := f.authority.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.alice), f.transaction(t, authtx.Legacy(f.alice.Address()), 0))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(opened) != "diary" {
		t.Errorf("plaintext = %q", opened)
	}

	f.fetchers[1].err = f.fetchers[0].err
	_, err = f.authority.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.alice), f.transaction(t, authtx.Legacy(f.alice.Address()), 0))
	if !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrDenied) {
		t.Errorf("error = %v, want ErrUnavailable without ErrDenied", err)
	}
}

func TestThreshold_GrantedWallet(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("shared notes"))

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
	if _, err := f.ledger.Submit(context.Background(), data, f.alice); err != nil {
		t.Fatalf("Submit grant: %v", err)
	}

	opened, err := f.authority.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.bob), f.transaction(t, authtx.Wallet(f.bob.Address()), grant.ScopeRead))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(opened) != "shared notes" {
		t.Errorf("plaintext = %q", opened)
	}
}

func TestThreshold_Timeout(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))
	proof := f.proof(t, f.alice)
	transaction := f.transaction(t, authtx.Legacy(f.alice.Address()), 0)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.authority.Decrypt(cancelled, ciphertext, proof, transaction); !errors.Is(err, ErrTimeout) {
		t.Errorf("cancelled context error = %v, want ErrTimeout", err)
	}

	members := append([]Member(nil), f.members...)
	members[0].Fetcher = hangingFetcher{}
	stalled, err := NewThreshold(Config{PackageID: packageID, Members: members, Threshold: 2})
	if err != nil {
		t.Fatalf("NewThreshold: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = stalled.Decrypt(ctx, ciphertext, proof, transaction)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("stalled member error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error chain lost the deadline: %v", err)
	}
}

func TestThreshold_RejectsCorruptedCiphertext(t *testing.T) {
	f := newFixture(t)
	ciphertext := f.encrypt(t, []byte("diary"))
	proof := f.proof(t, f.alice)
	transaction := f.transaction(t, authtx.Legacy(f.alice.Address()), 0)

	for name, data := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("not an envelope"),
		"truncated": ciphertext[:len(ciphertext)/2],
	} {
		if _, err := f.authority.Decrypt(context.Background(), data, proof, transaction); !errors.Is(err, envelope.ErrCorrupted) {
			t.Errorf("%s: error = %v, want envelope.ErrCorrupted", name, err)
		}
	}
	if calls := f.calls(); calls[0]+calls[1]+calls[2] != 0 {
		t.Errorf("corrupted ciphertext reached key servers: %v", calls)
	}
}

func TestThreshold_ForeignPackage(t *testing.T) {
	f := newFixture(t)
	other, err := NewThreshold(Config{PackageID: address.MustParse("0xbad"), Members: f.members})
	if err != nil {
		t.Fatalf("NewThreshold: %v", err)
	}
	ciphertext := f.encrypt(t, []byte("diary"))
	_, err = other.Decrypt(context.Background(), ciphertext,
		f.proof(t, f.alice), f.transaction(t, authtx.Legacy(f.alice.Address()), 0))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestThreshold_EncryptValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.authority.Encrypt(context.Background(), EncryptRequest{Identity: []byte{1, 2, 3}, Plaintext: []byte("x")}); err == nil {
		t.Error("short identity accepted")
	}
	if _, err := f.authority.Encrypt(context.Background(), EncryptRequest{Identity: f.identity, Plaintext: []byte("x"), Threshold: 4}); err == nil {
		t.Error("threshold above member count accepted")
	}

	result, err := f.authority.Encrypt(context.Background(), EncryptRequest{Identity: f.identity, Plaintext: []byte("x"), Threshold: 3})
	if err != nil {
		t.Fatalf("Encrypt with threshold 3: %v", err)
	}
	defer result.DataKey.Close()
	parsed, err := envelope.Parse(result.Ciphertext)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Threshold != 3 {
		t.Errorf("threshold = %d, want 3", parsed.Threshold)
	}
}

func TestNewThreshold(t *testing.T) {
	f := newFixture(t)

	majority, err := NewThreshold(Config{PackageID: packageID, Members: f.members})
	if err != nil {
		t.Fatalf("NewThreshold: %v", err)
	}
	if majority.DefaultThreshold() != 2 {
		t.Errorf("default threshold = %d, want 2", majority.DefaultThreshold())
	}

	duplicate := append(append([]Member(nil), f.members...), f.members[0])
	badKey := append([]Member(nil), f.members...)
	badKey[1].PublicKey = "age1notakey"
	noFetcher := append([]Member(nil), f.members...)
	noFetcher[2].Fetcher = nil

	for name, config := range map[string]Config{
		"no package":     {Members: f.members},
		"no members":     {PackageID: packageID},
		"duplicate":      {PackageID: packageID, Members: duplicate},
		"bad public key": {PackageID: packageID, Members: badKey},
		"no fetcher":     {PackageID: packageID, Members: noFetcher},
		"threshold high": {PackageID: packageID, Members: f.members, Threshold: 4},
		"threshold low":  {PackageID: packageID, Members: f.members, Threshold: -1},
	} {
		if _, err := NewThreshold(config); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
