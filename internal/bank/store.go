// Package bank implements the account ledger engine: accounts, the client
// registry, and the store that owns them both.
package bank

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/credential"
	"github.com/passbook-dev/passbook/internal/id"
	"github.com/passbook-dev/passbook/internal/model"
)

// Flusher persists a full snapshot of the store.
type Flusher interface {
	Flush(state model.State) error
}

// Store is the aggregate root holding all clients and accounts. Accounts
// refer to their owner by identifier only; the store resolves it.
type Store struct {
	mu       sync.RWMutex
	clients  map[string]*model.Client
	accounts map[string]*Account
	byOwner  map[string]string // client identifier -> account number

	limits         Limits
	defaultVariant model.Variant
	hasher         *credential.Hasher
	now            func() time.Time
	observers      []Observer

	flushMu sync.Mutex
	flusher Flusher
}

// Option configures a Store.
type Option func(*Store)

// WithLimits sets the withdrawal rules for every account.
func WithLimits(l Limits) Option {
	return func(s *Store) { s.limits = l }
}

// WithDefaultVariant sets the variant OpenAccount uses.
func WithDefaultVariant(v model.Variant) Option {
	return func(s *Store) { s.defaultVariant = v }
}

// WithHasher sets the credential hasher.
func WithHasher(h *credential.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

// WithFlusher sets where the store is written after each mutation.
func WithFlusher(f Flusher) Option {
	return func(s *Store) { s.flusher = f }
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// WithClock overrides the movement timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		clients:        make(map[string]*model.Client),
		accounts:       make(map[string]*Account),
		byOwner:        make(map[string]string),
		limits:         DefaultLimits(),
		defaultVariant: model.Standard(),
		now:            func() time.Time { return time.Now().UTC().Round(0) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasher == nil {
		s.hasher = credential.NewHasher(0)
	}
	return s
}

// RegisterClient adds a client with no account. displayName defaults to
// the identifier.
func (s *Store) RegisterClient(identifier, displayName, password string) error {
	start := time.Now()
	err := s.registerClient(identifier, displayName, password)
	s.notify(Event{
		Op:      OpRegisterClient,
		Client:  identifier,
		Applied: err == nil || isFlushError(err),
		Err:     err,
		Elapsed: time.Since(start),
	})
	return err
}

func (s *Store) registerClient(identifier, displayName, password string) error {
	if strings.TrimSpace(identifier) == "" {
		return ErrInvalidIdentifier
	}
	s.mu.RLock()
	_, exists := s.clients[identifier]
	s.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClient, identifier)
	}

	hash, err := s.hasher.Hash(password)
	if errors.Is(err, credential.ErrPasswordTooLong) {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if err != nil {
		return err
	}
	if displayName == "" {
		displayName = identifier
	}

	s.mu.Lock()
	if _, exists := s.clients[identifier]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateClient, identifier)
	}
	s.clients[identifier] = &model.Client{
		Identifier:     identifier,
		DisplayName:    displayName,
		CredentialHash: hash,
	}
	s.mu.Unlock()

	return s.flush(OpRegisterClient)
}

// OpenAccount creates the client's account with the store's default variant.
func (s *Store) OpenAccount(identifier string) (string, error) {
	return s.OpenAccountWith(identifier, s.defaultVariant)
}

// OpenAccountWith creates the client's account with an explicit variant and
// returns its number.
func (s *Store) OpenAccountWith(identifier string, variant model.Variant) (string, error) {
	start := time.Now()
	number, err := s.openAccount(identifier, variant)
	s.notify(Event{
		Op:      OpOpenAccount,
		Client:  identifier,
		Account: number,
		Applied: err == nil || isFlushError(err),
		Err:     err,
		Elapsed: time.Since(start),
	})
	return number, err
}

func (s *Store) openAccount(identifier string, variant model.Variant) (string, error) {
	if variant.Kind == model.VariantOverdraft && variant.Limit.IsNegative() {
		return "", ErrInvalidAmount
	}

	s.mu.Lock()
	if _, ok := s.clients[identifier]; !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownClient, identifier)
	}
	if existing, ok := s.byOwner[identifier]; ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s owns %s", ErrAccountAlreadyExists, identifier, existing)
	}

	seq := len(s.accounts) + 1
	number := id.FormatAccountNumber(seq)
	for s.accounts[number] != nil {
		seq++
		number = id.FormatAccountNumber(seq)
	}
	rec := model.AccountRecord{
		Number:         number,
		Owner:          identifier,
		Variant:        variant.Kind,
		OverdraftLimit: variant.Limit,
	}
	s.accounts[number] = newAccount(rec, s.limits, s.now)
	s.byOwner[identifier] = number
	s.mu.Unlock()

	return number, s.flush(OpOpenAccount)
}

// Authenticate returns the account number bound to identifier when password
// matches. Unknown identifiers and wrong passwords fail identically.
func (s *Store) Authenticate(identifier, password string) (string, error) {
	start := time.Now()
	number, err := s.authenticate(identifier, password)
	s.notify(Event{
		Op:      OpAuthenticate,
		Client:  identifier,
		Account: number,
		Err:     err,
		Elapsed: time.Since(start),
	})
	return number, err
}

func (s *Store) authenticate(identifier, password string) (string, error) {
	s.mu.RLock()
	c, ok := s.clients[identifier]
	var hash []byte
	if ok {
		hash = c.CredentialHash
	}
	number := s.byOwner[identifier]
	s.mu.RUnlock()

	if !ok {
		s.hasher.Burn(password)
		return "", ErrAuthenticationFailed
	}
	if !s.hasher.Verify(hash, password) {
		return "", ErrAuthenticationFailed
	}
	if number == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAccount, identifier)
	}
	return number, nil
}

// Deposit credits the account and saves the store.
func (s *Store) Deposit(number string, amount decimal.Decimal) (model.Movement, error) {
	start := time.Now()
	ev := Event{Op: OpDeposit, Account: number, Amount: amount}

	m, err := s.mutate(number, &ev, func(a *Account) (model.Movement, error) {
		return a.Deposit(amount)
	})
	ev.Err = err
	ev.Elapsed = time.Since(start)
	s.notify(ev)
	return m, err
}

// Withdraw debits the account and saves the store.
func (s *Store) Withdraw(number string, amount decimal.Decimal) (model.Movement, error) {
	start := time.Now()
	ev := Event{Op: OpWithdraw, Account: number, Amount: amount}

	m, err := s.mutate(number, &ev, func(a *Account) (model.Movement, error) {
		return a.Withdraw(amount)
	})
	ev.Err = err
	ev.Elapsed = time.Since(start)
	s.notify(ev)
	return m, err
}

func (s *Store) mutate(number string, ev *Event, fn func(*Account) (model.Movement, error)) (model.Movement, error) {
	a, err := s.Account(number)
	if err != nil {
		return model.Movement{}, err
	}
	ev.Client = a.Owner()
	m, err := fn(a)
	if err != nil {
		return model.Movement{}, err
	}
	ev.Applied = true
	ev.Balance = a.Balance()
	return m, s.flush(ev.Op)
}

// Transfer moves amount from src to dst and saves the store. It returns the
// outgoing movement recorded on src.
func (s *Store) Transfer(src, dst string, amount decimal.Decimal) (model.Movement, error) {
	start := time.Now()
	ev := Event{Op: OpTransfer, Account: src, Counterparty: dst, Amount: amount}

	m, err := s.transfer(src, dst, amount, &ev)
	ev.Err = err
	ev.Elapsed = time.Since(start)
	s.notify(ev)
	return m, err
}

func (s *Store) transfer(src, dst string, amount decimal.Decimal, ev *Event) (model.Movement, error) {
	from, err := s.Account(src)
	if err != nil {
		return model.Movement{}, err
	}
	to, err := s.Account(dst)
	if err != nil {
		return model.Movement{}, err
	}
	ev.Client = from.Owner()

	m, err := from.TransferTo(to, amount)
	if err != nil {
		return model.Movement{}, err
	}
	ev.Applied = true
	ev.Balance = from.Balance()
	ev.CounterpartyBalance = to.Balance()
	return m, s.flush(OpTransfer)
}

// Statement returns the account's history with the owner's display name
// resolved through the registry.
func (s *Store) Statement(number string) (Statement, error) {
	a, err := s.Account(number)
	if err != nil {
		return Statement{}, err
	}
	st := a.Statement()

	s.mu.RLock()
	if c, ok := s.clients[st.Owner]; ok {
		st.OwnerName = c.DisplayName
	}
	s.mu.RUnlock()
	return st, nil
}

// Account looks up an account by number.
func (s *Store) Account(number string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[number]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, number)
	}
	return a, nil
}

// Client returns a copy of the registered client.
func (s *Store) Client(identifier string) (model.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[identifier]
	if !ok {
		return model.Client{}, false
	}
	return copyClient(c), true
}

// AccountOf returns the number of the account identifier owns, if any.
func (s *Store) AccountOf(identifier string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byOwner[identifier]
	return n, ok
}

// Numbers returns all account numbers in ascending order.
func (s *Store) Numbers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.accounts))
	for n := range s.accounts {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return numberLess(out[i], out[j]) })
	return out
}

// Accounts returns every account in ascending number order.
func (s *Store) Accounts() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return numberLess(out[i].number, out[j].number) })
	return out
}

// Snapshot returns a consistent copy of the whole store. Every account is
// locked, in ascending number order, for the duration of the copy so no
// transfer is seen half-applied.
func (s *Store) Snapshot() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := model.State{
		Clients:  make([]model.Client, 0, len(s.clients)),
		Accounts: make([]model.AccountRecord, 0, len(s.accounts)),
	}
	for _, c := range s.clients {
		state.Clients = append(state.Clients, copyClient(c))
	}
	sort.Slice(state.Clients, func(i, j int) bool {
		return state.Clients[i].Identifier < state.Clients[j].Identifier
	})

	accts := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accts = append(accts, a)
	}
	sort.Slice(accts, func(i, j int) bool { return numberLess(accts[i].number, accts[j].number) })

	for _, a := range accts {
		a.mu.Lock()
	}
	for _, a := range accts {
		state.Accounts = append(state.Accounts, a.recordLocked())
	}
	for i := len(accts) - 1; i >= 0; i-- {
		accts[i].mu.Unlock()
	}
	return state
}

// Restore replaces the store contents with state. The state is rejected
// without changing the store if it breaks identity invariants.
func (s *Store) Restore(state model.State) error {
	clients := make(map[string]*model.Client, len(state.Clients))
	for _, c := range state.Clients {
		if _, dup := clients[c.Identifier]; dup {
			return fmt.Errorf("restoring store: %w: %s", ErrDuplicateClient, c.Identifier)
		}
		cp := copyClient(&c)
		clients[c.Identifier] = &cp
	}

	accounts := make(map[string]*Account, len(state.Accounts))
	byOwner := make(map[string]string, len(state.Accounts))
	for _, rec := range state.Accounts {
		if _, dup := accounts[rec.Number]; dup {
			return fmt.Errorf("restoring store: duplicate account %s", rec.Number)
		}
		if _, ok := clients[rec.Owner]; !ok {
			return fmt.Errorf("restoring store: account %s: %w: %s", rec.Number, ErrUnknownClient, rec.Owner)
		}
		if other, ok := byOwner[rec.Owner]; ok {
			return fmt.Errorf("restoring store: %w: %s owns %s and %s", ErrAccountAlreadyExists, rec.Owner, other, rec.Number)
		}
		accounts[rec.Number] = newAccount(rec, s.limits, s.now)
		byOwner[rec.Owner] = rec.Number
	}

	s.mu.Lock()
	s.clients = clients
	s.accounts = accounts
	s.byOwner = byOwner
	s.mu.Unlock()
	return nil
}

// Flush writes the current snapshot through the configured Flusher.
func (s *Store) Flush() error {
	return s.flush("flush")
}

func (s *Store) flush(op Op) error {
	if s.flusher == nil {
		return nil
	}
	// Snapshot inside flushMu so a later state is never overwritten by an
	// earlier one.
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if err := s.flusher.Flush(s.Snapshot()); err != nil {
		return &FlushError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) notify(ev Event) {
	if len(s.observers) == 0 {
		return
	}
	ev.At = s.now()
	for _, o := range s.observers {
		o.Observe(ev)
	}
}

func copyClient(c *model.Client) model.Client {
	cp := *c
	cp.CredentialHash = append([]byte(nil), c.CredentialHash...)
	return cp
}

func isFlushError(err error) bool {
	_, ok := err.(*FlushError)
	return ok
}
