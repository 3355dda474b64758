package wallet

import (
	"context"
	"strconv"
	"testing"
)

func mustEphemeral(t *testing.T) Local {
	t.Helper()
	w, err := NewEphemeral()
	if err != nil {
		t.Fatalf("NewEphemeral: %v", err)
	}
	return w
}

func TestSet_AddAndGet(t *testing.T) {
	set := NewSet()
	signer := mustEphemeral(t)

	id := set.Add(RoleCreator, SourceGenerated, signer)
	if string(id) != signer.PublicKey().String() {
		t.Errorf("id = %s, want base58 address %s", id, signer.PublicKey())
	}

	w, ok := set.Get(id)
	if !ok {
		t.Fatal("Get returned false for registered wallet")
	}
	if w.Role != RoleCreator || w.Source != SourceGenerated {
		t.Errorf("wallet = %+v, want creator/generated", w)
	}

	// Re-adding the same signer is a no-op
	again := set.Add(RoleBundle, SourceImported, signer)
	if again != id {
		t.Errorf("duplicate Add returned %s, want %s", again, id)
	}
	if set.Len() != 1 {
		t.Errorf("Len = %d, want 1", set.Len())
	}
	w, _ = set.Get(id)
	if w.Role != RoleCreator {
		t.Errorf("duplicate Add changed role to %s", w.Role)
	}
}

func TestSet_ResolveByIndexAndAddress(t *testing.T) {
	set := NewSet()
	var ids []WalletID
	for i := 0; i < 3; i++ {
		ids = append(ids, set.Add(RoleBundle, SourceGenerated, mustEphemeral(t)))
	}

	for i, want := range ids {
		got, ok := set.Resolve(strconv.Itoa(i))
		if !ok || got != want {
			t.Errorf("Resolve(%d) = %s, %v; want %s", i, got, ok, want)
		}
	}

	got, ok := set.Resolve(string(ids[1]))
	if !ok || got != ids[1] {
		t.Errorf("Resolve(address) = %s, %v; want %s", got, ok, ids[1])
	}

	if _, ok := set.Resolve("3"); ok {
		t.Error("Resolve(out-of-range index) should fail")
	}
	if _, ok := set.Resolve("-1"); ok {
		t.Error("Resolve(negative index) should fail")
	}
	if _, ok := set.Resolve("nonsense"); ok {
		t.Error("Resolve(unknown ref) should fail")
	}
}

func TestSet_ByRoleAndMaster(t *testing.T) {
	set := NewSet()
	master := mustEphemeral(t)
	set.Add(RoleMaster, SourceImported, master)
	set.Add(RoleBundle, SourceGenerated, mustEphemeral(t))
	set.Add(RoleBundle, SourceGenerated, mustEphemeral(t))
	set.Add(RoleHolder, SourceGenerated, mustEphemeral(t))

	if got := len(set.ByRole(RoleBundle)); got != 2 {
		t.Errorf("ByRole(bundle) len = %d, want 2", got)
	}
	if got := len(set.ByRole(RoleCreator)); got != 0 {
		t.Errorf("ByRole(creator) len = %d, want 0", got)
	}

	m, ok := set.Master()
	if !ok {
		t.Fatal("Master not found")
	}
	if m.Address() != master.PublicKey() {
		t.Errorf("Master = %s, want %s", m.Address(), master.PublicKey())
	}
}

func TestSet_ContainsAndAddresses(t *testing.T) {
	set := NewSet()
	in := mustEphemeral(t)
	out := mustEphemeral(t)
	set.Add(RoleHolder, SourceGenerated, in)

	if !set.Contains(in.PublicKey()) {
		t.Error("Contains(registered) = false")
	}
	if set.Contains(out.PublicKey()) {
		t.Error("Contains(unregistered) = true")
	}

	addrs := set.Addresses()
	if len(addrs) != 1 || addrs[0] != in.PublicKey() {
		t.Errorf("Addresses = %v", addrs)
	}
}

func TestSet_UpdateBalance(t *testing.T) {
	set := NewSet()
	id := set.Add(RoleHolder, SourceGenerated, mustEphemeral(t))

	set.UpdateBalance(id, 42_000_000)
	w, _ := set.Get(id)
	if w.Balance != 42_000_000 {
		t.Errorf("Balance = %d, want 42000000", w.Balance)
	}
}

func TestLocal_SignAndExport(t *testing.T) {
	w := mustEphemeral(t)

	sig, err := w.SignMessage(context.Background(), []byte("message"))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if sig.IsZero() {
		t.Error("signature is zero")
	}

	restored, err := NewLocalFromBase58(w.ExportBase58())
	if err != nil {
		t.Fatalf("NewLocalFromBase58: %v", err)
	}
	if restored.PublicKey() != w.PublicKey() {
		t.Errorf("round-tripped key %s != %s", restored.PublicKey(), w.PublicKey())
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.SignMessage(cancelled, []byte("message")); err == nil {
		t.Error("SignMessage with cancelled context should fail")
	}
}
