// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/pdw/cmd/pdw/cli"
	"github.com/bureau-foundation/pdw/lib/derivation"
	"github.com/bureau-foundation/pdw/lib/ledger/memledger"
	"github.com/bureau-foundation/pdw/lib/sealed"
	"github.com/bureau-foundation/pdw/lib/signer"
	"github.com/bureau-foundation/pdw/lib/testutil"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	root := testutil.StateDir(t)

	var servers string
	for i := range 2 {
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair: %v", err)
		}
		t.Cleanup(func() { keypair.Close() })
		servers += fmt.Sprintf("  - id: ks-%d\n    public_key: %s\n    url: http://127.0.0.1:%d\n", i+1, keypair.PublicKey, 8421+i)
	}

	content := fmt.Sprintf(`environment: development
paths:
  root: %[1]s
  state: %[1]s/state
  blobs: %[1]s/blobs
ledger:
  package_id: "0x5ea1"
  registry_id: "0x6e6"
  clock_id: "0x6"
threshold: 2
key_servers:
%[2]s`, root, servers)

	path := filepath.Join(root, "pdw.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// contextFixture is a configured state directory with a saved master
// key.
type contextFixture struct {
	configPath string
	keyPath    string
	master     *signer.Ed25519
	statePath  string
}

func newContextFixture(t *testing.T) *contextFixture {
	t.Helper()
	f := &contextFixture{configPath: writeTestConfig(t)}
	f.statePath = filepath.Join(filepath.Dir(f.configPath), "state")

	master, err := signer.FromSeed(bytes.Repeat([]byte{0xA}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	t.Cleanup(func() { master.Close() })
	f.master = master
	f.keyPath = filepath.Join(t.TempDir(), "master.key")
	if err := master.Save(f.keyPath); err != nil {
		t.Fatalf("saving key: %v", err)
	}
	return f
}

func (f *contextFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	return ContextCommand().Execute(append(args, "--config", f.configPath))
}

func (f *contextFixture) record(t *testing.T) *derivation.MasterRecord {
	t.Helper()
	record, err := derivation.LoadMasterRecord(f.master.Address(), filepath.Join(f.statePath, SaltFileName))
	if err != nil {
		t.Fatalf("LoadMasterRecord: %v", err)
	}
	t.Cleanup(func() { record.Close() })
	return record
}

func (f *contextFixture) snapshot(t *testing.T) *memledger.Ledger {
	t.Helper()
	params := cli.ConfigParams{ConfigPath: f.configPath}
	cfg, err := params.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	addresses, err := cli.ParseLedgerAddresses(cfg.Ledger)
	if err != nil {
		t.Fatalf("ParseLedgerAddresses: %v", err)
	}
	loaded, err := memledger.Load(cli.LedgerSnapshotPath(cfg), memledger.Config{
		PackageID:  addresses.PackageID,
		RegistryID: addresses.RegistryID,
		ClockID:    addresses.ClockID,
	})
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	return loaded
}

func TestContextInit_WritesSaltOnce(t *testing.T) {
	f := newContextFixture(t)

	if err := f.run(t, "init", "--key", f.keyPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	first := f.record(t)
	address, err := first.DeriveAt(0)
	if err != nil {
		t.Fatalf("DeriveAt: %v", err)
	}

	if err := f.run(t, "init", "--key", f.keyPath); err == nil {
		t.Fatal("second init without --force succeeded")
	}
	if again, _ := f.record(t).DeriveAt(0); again != address {
		t.Error("refused init replaced the salt")
	}

	if err := f.run(t, "init", "--key", f.keyPath, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	if replaced, _ := f.record(t).DeriveAt(0); replaced == address {
		t.Error("init --force kept the old salt")
	}
}

func TestContextDerive_Validation(t *testing.T) {
	f := newContextFixture(t)
	if err := f.run(t, "init", "--key", f.keyPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	master := f.master.Address().String()

	tests := map[string][]string{
		"neither app nor index": {"derive", "--master", master},
		"both app and index":    {"derive", "--master", master, "--app", "com.example.notes", "--index", "0"},
		"bad index":             {"derive", "--master", master, "--index", "first"},
		"bad master":            {"derive", "--master", "a11ce", "--app", "com.example.notes"},
	}
	for name, args := range tests {
		if err := f.run(t, args...); err == nil {
			t.Errorf("%s: derive succeeded", name)
		}
	}
	if err := f.run(t, "derive", "--master", master, "--app", "com.example.notes", "--json"); err != nil {
		t.Errorf("derive --app: %v", err)
	}
}

func TestContextRegister_RecordsOwnership(t *testing.T) {
	f := newContextFixture(t)
	if err := f.run(t, "init", "--key", f.keyPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	record := f.record(t)
	notes, _ := record.DeriveAt(0)
	photos, _ := record.DeriveAt(1)
	unused, _ := record.DeriveAt(2)

	if err := f.run(t, "register", "--key", f.keyPath, "--hint", "com.example.notes", "--json"); err != nil {
		t.Fatalf("register notes: %v", err)
	}
	if err := f.run(t, "register", "--key", f.keyPath, "--hint", "com.example.photos", "--json"); err != nil {
		t.Fatalf("register photos: %v", err)
	}
	// A second command run restores the wallets from the snapshot and
	// returns the existing registration.
	if err := f.run(t, "register", "--key", f.keyPath, "--hint", "com.example.notes", "--json"); err != nil {
		t.Fatalf("register notes again: %v", err)
	}

	ledger := f.snapshot(t)
	master := f.master.Address()
	if owner := ledger.Owner(notes); owner != master {
		t.Errorf("notes context owner = %s, want %s", owner, master)
	}
	if owner := ledger.Owner(photos); owner != master {
		t.Errorf("photos context owner = %s, want %s", owner, master)
	}
	if owner := ledger.Owner(unused); owner != unused {
		t.Errorf("index 2 was registered: owner = %s", owner)
	}

	if err := f.run(t, "list", "--master", master.String(), "--json"); err != nil {
		t.Errorf("list: %v", err)
	}
}

func TestContextRegister_RequiresSalt(t *testing.T) {
	f := newContextFixture(t)
	if err := f.run(t, "register", "--key", f.keyPath); err == nil {
		t.Error("register without a salt succeeded")
	}
	if err := f.run(t, "register"); err == nil {
		t.Error("register without --key succeeded")
	}
}
