package wallet

import (
	"strconv"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Role determines a wallet's participation in the launch. Creator and bundle
// wallets take part in the atomic bundle; holder wallets trade post-launch
// only; the master wallet funds everyone.
type Role string

const (
	RoleMaster  Role = "master"
	RoleCreator Role = "creator"
	RoleBundle  Role = "bundle"
	RoleHolder  Role = "holder"
)

// SourceMode records whether a wallet was generated during the run or
// imported from the external wallet store.
type SourceMode string

const (
	SourceGenerated SourceMode = "generated"
	SourceImported  SourceMode = "imported"
)

// WalletID is the stable opaque handle for a wallet. It is resolved exactly
// once, from either a base58 address or a creation-order index, and used
// everywhere after that.
type WalletID string

// Wallet bundles identity, role, and signing material.
type Wallet struct {
	ID      WalletID
	Role    Role
	Source  SourceMode
	Signer  Signer
	Balance uint64 // lamports, last observed
}

// Address returns the wallet's public key.
func (w Wallet) Address() solana.PublicKey {
	return w.Signer.PublicKey()
}

// Set is the launch's wallet registry. Safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	byID  map[WalletID]*Wallet
	order []WalletID
}

// NewSet creates an empty wallet set.
func NewSet() *Set {
	return &Set{byID: make(map[WalletID]*Wallet)}
}

// Add registers a wallet and returns its ID. The ID is the base58 address;
// creation order is retained for index-based resolution.
func (s *Set) Add(role Role, source SourceMode, signer Signer) WalletID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := WalletID(signer.PublicKey().String())
	if _, exists := s.byID[id]; exists {
		return id
	}
	s.byID[id] = &Wallet{ID: id, Role: role, Source: source, Signer: signer}
	s.order = append(s.order, id)
	return id
}

// Get returns the wallet for an ID.
func (s *Set) Get(id WalletID) (Wallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return Wallet{}, false
	}
	return *w, true
}

// Resolve converts an external reference, either a base58 address or a
// creation-order index, into a WalletID.
func (s *Set) Resolve(ref string) (WalletID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, err := strconv.Atoi(ref); err == nil {
		if idx < 0 || idx >= len(s.order) {
			return "", false
		}
		return s.order[idx], true
	}
	if _, ok := s.byID[WalletID(ref)]; ok {
		return WalletID(ref), true
	}
	return "", false
}

// ByRole returns wallets of the given role in creation order.
func (s *Set) ByRole(role Role) []Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Wallet
	for _, id := range s.order {
		if w := s.byID[id]; w.Role == role {
			out = append(out, *w)
		}
	}
	return out
}

// Master returns the master wallet, if registered.
func (s *Set) Master() (Wallet, bool) {
	masters := s.ByRole(RoleMaster)
	if len(masters) == 0 {
		return Wallet{}, false
	}
	return masters[0], true
}

// Addresses returns every wallet address in creation order. Used to populate
// the launch lookup table.
func (s *Set) Addresses() []solana.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]solana.PublicKey, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Signer.PublicKey())
	}
	return out
}

// Contains reports whether an address belongs to the launch's own wallets.
// The volume feed uses this to classify flow as external.
func (s *Set) Contains(addr solana.PublicKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byID[WalletID(addr.String())]
	return ok
}

// UpdateBalance records the last observed balance for a wallet.
func (s *Set) UpdateBalance(id WalletID, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.byID[id]; ok {
		w.Balance = lamports
	}
}

// Len returns the number of registered wallets.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
