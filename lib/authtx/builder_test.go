// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtx

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/pdw/lib/address"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/grant"
	"github.com/bureau-foundation/pdw/lib/ledger"
)

var (
	testPackage  = address.MustParse("0x5ea1")
	testRegistry = address.MustParse("0x7e9")
	testClock    = address.MustParse("0x6")
	ownerA       = address.MustParse("0xA")
	walletB      = address.MustParse("0xB")
	walletC      = address.MustParse("0xC")
)

func testConfig() Config {
	return Config{PackageID: testPackage, RegistryID: testRegistry, ClockID: testClock}
}

func encode(t *testing.T, transaction *Transaction) []byte {
	t.Helper()
	data, err := transaction.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func TestBuild_Deterministic(t *testing.T) {
	first, err := NewBuilder(testConfig()).Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeRead)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := NewBuilder(testConfig()).Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeRead)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(encode(t, first), encode(t, second)) {
		t.Fatal("two builders produced different bytes for identical inputs")
	}
}

func TestBuild_RequestorDifferentiation(t *testing.T) {
	builder := NewBuilder(testConfig())
	requestors := map[string]Requestor{
		"wallet B": Wallet(walletB),
		"wallet C": Wallet(walletC),
		"app x":    App(ownerA, "com.example.x"),
		"app y":    App(ownerA, "com.example.y"),
		"legacy A": Legacy(ownerA),
		"legacy B": Legacy(walletB),
	}
	seen := make(map[string]string)
	for name, requestor := range requestors {
		transaction, err := builder.Build(ownerA.Bytes(), requestor, grant.ScopeRead)
		if err != nil {
			t.Fatalf("Build(%s): %v", name, err)
		}
		encoded := string(encode(t, transaction))
		if other, exists := seen[encoded]; exists {
			t.Errorf("requestors %s and %s encoded identically", name, other)
		}
		seen[encoded] = name
	}
}

func TestBuild_ScopeChangesArguments(t *testing.T) {
	builder := NewBuilder(testConfig())
	read, _ := builder.Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeRead)
	admin, _ := builder.Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeAdmin)
	if bytes.Equal(encode(t, read), encode(t, admin)) {
		t.Fatal("read and admin requests encoded identically")
	}
}

func TestBuild_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		identity []byte
	}{
		{name: "no identity", config: testConfig(), identity: nil},
		{name: "no package", config: Config{RegistryID: testRegistry, ClockID: testClock}, identity: ownerA.Bytes()},
		{name: "no registry", config: Config{PackageID: testPackage, ClockID: testClock}, identity: ownerA.Bytes()},
		{name: "no clock", config: Config{PackageID: testPackage, RegistryID: testRegistry}, identity: ownerA.Bytes()},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewBuilder(test.config).Build(test.identity, Wallet(walletB), grant.ScopeRead)
			if !errors.Is(err, ErrMissingConfiguration) {
				t.Errorf("error = %v, want ErrMissingConfiguration", err)
			}
		})
	}
}

func TestBuild_InvalidInputs(t *testing.T) {
	builder := NewBuilder(testConfig())
	if _, err := builder.Build([]byte{1, 2, 3}, Wallet(walletB), grant.ScopeRead); !errors.Is(err, ErrInvalidContentIdentity) {
		t.Errorf("short identity error = %v", err)
	}
	if _, err := builder.Build(ownerA.Bytes(), Wallet(address.Zero), grant.ScopeRead); !errors.Is(err, ErrInvalidRequestor) {
		t.Errorf("zero wallet error = %v", err)
	}
	if _, err := builder.Build(ownerA.Bytes(), App(ownerA, ""), grant.ScopeRead); !errors.Is(err, ErrInvalidRequestor) {
		t.Errorf("empty app error = %v", err)
	}
	if _, err := builder.Build(ownerA.Bytes(), Wallet(walletB), grant.Scope(9)); !errors.Is(err, ErrInvalidRequestor) {
		t.Errorf("bad scope error = %v", err)
	}
}

func TestBuild_DeprecationNotice(t *testing.T) {
	var notices []Notice
	var logOutput bytes.Buffer
	config := testConfig()
	config.OnDeprecated = func(notice Notice) { notices = append(notices, notice) }
	config.Logger = slog.New(slog.NewTextHandler(&logOutput, nil))
	builder := NewBuilder(config)

	if _, err := builder.Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeRead); err != nil {
		t.Fatalf("wallet Build: %v", err)
	}
	if len(notices) != 0 {
		t.Fatalf("wallet mode emitted %d notices", len(notices))
	}

	legacy, err := builder.Build(ownerA.Bytes(), Legacy(ownerA), 0)
	if err != nil {
		t.Fatalf("legacy Build: %v", err)
	}
	if legacy.Sender != ownerA {
		t.Errorf("legacy sender = %s, want %s", legacy.Sender, ownerA)
	}
	if _, err := builder.Build(ownerA.Bytes(), App(ownerA, "com.example.x"), grant.ScopeRead); err != nil {
		t.Fatalf("app Build: %v", err)
	}

	if len(notices) != 2 {
		t.Fatalf("got %d notices, want 2", len(notices))
	}
	if notices[0].Mode != ModeLegacy || notices[0].Function != FunctionSealApprove {
		t.Errorf("first notice = %+v", notices[0])
	}
	if notices[1].Mode != ModeApp || notices[1].Function != FunctionSealApproveApp {
		t.Errorf("second notice = %+v", notices[1])
	}
	if builder.DeprecationCount() != 2 {
		t.Errorf("DeprecationCount = %d, want 2", builder.DeprecationCount())
	}
	if strings.Count(logOutput.String(), "deprecated authorization mode") != 2 {
		t.Errorf("log output missing warnings:\n%s", logOutput.String())
	}
}

func TestBuild_ParseApprovalRoundtrip(t *testing.T) {
	builder := NewBuilder(testConfig())
	identity := append(ownerA.Bytes(), 0xde, 0xad)

	tests := []struct {
		name      string
		requestor Requestor
		scope     grant.Scope
	}{
		{name: "legacy", requestor: Legacy(ownerA)},
		{name: "wallet", requestor: Wallet(walletB), scope: grant.ScopeWrite},
		{name: "app", requestor: App(ownerA, "com.example.x"), scope: grant.ScopeRead},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			transaction, err := builder.Build(identity, test.requestor, test.scope)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			decoded, err := Decode(encode(t, transaction))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Sender != test.requestor.Sender() {
				t.Errorf("sender = %s, want %s", decoded.Sender, test.requestor.Sender())
			}
			call, err := decoded.Call()
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if call.Package != testPackage || !IsApproval(call.Function) {
				t.Errorf("call target = %s", call.Target())
			}
			approval, err := ParseApproval(call)
			if err != nil {
				t.Fatalf("ParseApproval: %v", err)
			}
			if approval.Mode != test.requestor.Mode {
				t.Errorf("mode = %s, want %s", approval.Mode, test.requestor.Mode)
			}
			if !bytes.Equal(approval.Identity, identity) || approval.Content != ownerA {
				t.Errorf("identity = %x, content = %s", approval.Identity, approval.Content)
			}
			if approval.Wallet != test.requestor.Wallet || approval.AppID != test.requestor.AppID {
				t.Errorf("requestor fields = %s, %q", approval.Wallet, approval.AppID)
			}
			if approval.Scope != test.scope {
				t.Errorf("scope = %s, want %s", approval.Scope, test.scope)
			}
			if approval.Registry != testRegistry || approval.Clock != testClock {
				t.Errorf("registry %s, clock %s", approval.Registry, approval.Clock)
			}
		})
	}
}

func TestBuildGrant_Roundtrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	g := grant.NewWallet(ownerA, walletB, grant.ScopeRead, ownerA, now, now.Add(time.Hour))

	transaction, err := NewBuilder(testConfig()).BuildGrant(g)
	if err != nil {
		t.Fatalf("BuildGrant: %v", err)
	}
	if transaction.Sender != ownerA {
		t.Errorf("sender = %s", transaction.Sender)
	}
	parsed, err := ParseGrant(transaction.Calls[0])
	if err != nil {
		t.Fatalf("ParseGrant: %v", err)
	}
	if parsed.ID != g.ID || parsed.Content != ownerA || parsed.Grantee != walletB.String() {
		t.Errorf("parsed = %+v", parsed)
	}
	if parsed.Kind != grant.GranteeWallet || parsed.Scope != grant.ScopeRead || parsed.ExpiresAt != g.ExpiresAt {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestBuildRevoke_Roundtrip(t *testing.T) {
	transaction, err := NewBuilder(testConfig()).BuildRevoke(ownerA, ownerA, walletB.String())
	if err != nil {
		t.Fatalf("BuildRevoke: %v", err)
	}
	parsed, err := ParseRevoke(transaction.Calls[0])
	if err != nil {
		t.Fatalf("ParseRevoke: %v", err)
	}
	if parsed.Content != ownerA || parsed.Grantee != walletB.String() || parsed.Registry != testRegistry {
		t.Errorf("parsed = %+v", parsed)
	}
	if _, err := NewBuilder(testConfig()).BuildRevoke(ownerA, ownerA, ""); !errors.Is(err, ErrMissingConfiguration) {
		t.Errorf("empty grantee error = %v", err)
	}
}

func TestBuildRegisterContext_Roundtrip(t *testing.T) {
	wallet := derivation.ContextWallet{Master: ownerA, Index: 3, Address: walletC, AppHint: "notes"}
	transaction, err := NewBuilder(testConfig()).BuildRegisterContext(wallet)
	if err != nil {
		t.Fatalf("BuildRegisterContext: %v", err)
	}
	registry, parsed, err := ParseRegisterContext(transaction.Calls[0])
	if err != nil {
		t.Fatalf("ParseRegisterContext: %v", err)
	}
	if registry != testRegistry || parsed != wallet {
		t.Errorf("parsed = %s, %+v", registry, parsed)
	}
}

func TestDecode_Rejects(t *testing.T) {
	if _, err := Decode([]byte{0xa0}); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("empty map error = %v", err)
	}
	transaction, _ := NewBuilder(testConfig()).Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeRead)
	data := append(encode(t, transaction), 0x00)
	if _, err := Decode(data); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("trailing byte error = %v", err)
	}
}

func TestDiagnose(t *testing.T) {
	transaction, _ := NewBuilder(testConfig()).Build(ownerA.Bytes(), Wallet(walletB), grant.ScopeRead)
	text, err := Diagnose(encode(t, transaction))
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"seal_approve_wallet"`) {
		t.Errorf("diagnostic output missing function name: %s", text)
	}
}

func TestPureDecoders(t *testing.T) {
	if value, err := PureBytes(pureBytes(bytes.Repeat([]byte{7}, 200))); err != nil || len(value) != 200 {
		t.Errorf("PureBytes(200) = %d bytes, %v", len(value), err)
	}
	if _, err := PureString(pureBytes([]byte{0xff, 0xfe})); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("invalid UTF-8 error = %v", err)
	}
	if value, err := PureU64(pureU64(1 << 40)); err != nil || value != 1<<40 {
		t.Errorf("PureU64 = %d, %v", value, err)
	}
	if _, err := PureU8(pureU64(1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("u8 width error = %v", err)
	}
}

func TestPureEncoding_WireBytes(t *testing.T) {
	tests := []struct {
		name     string
		argument ledger.Argument
		want     []byte
	}{
		{name: "u8", argument: pureU8(2), want: []byte{0x02}},
		{name: "u64", argument: pureU64(0x0102), want: []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0}},
		{name: "empty vector", argument: pureBytes(nil), want: []byte{0x00}},
		{name: "two-byte length", argument: pureBytes(bytes.Repeat([]byte{7}, 200)), want: append([]byte{0xc8, 0x01}, bytes.Repeat([]byte{7}, 200)...)},
		{name: "string", argument: pureString("ab"), want: []byte{0x02, 'a', 'b'}},
	}
	for _, test := range tests {
		value := test.argument.Value
		if !bytes.Equal(value, test.want) {
			t.Errorf("%s: encoded = %x, want %x", test.name, value, test.want)
		}
	}
}

func TestPureDecoders_RejectMalformed(t *testing.T) {
	tests := map[string]func() error{
		"truncated vector": func() error {
			_, err := PureBytes(ledger.Pure([]byte{0x05, 'a', 'b'}))
			return err
		},
		"trailing bytes": func() error {
			_, err := PureBytes(ledger.Pure([]byte{0x01, 'a', 'b'}))
			return err
		},
		"short u64": func() error {
			_, err := PureU64(ledger.Pure([]byte{1, 2, 3}))
			return err
		},
	}
	for name, decode := range tests {
		if err := decode(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: error = %v, want ErrInvalidArgument", name, err)
		}
	}
}
