// Package codec encodes the ledger store as a single JSON document and
// persists it atomically.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/passbook-dev/passbook/internal/model"
	"github.com/passbook-dev/passbook/internal/verify"
)

// Format and Version identify the document layout.
const (
	Format  = "passbook"
	Version = 1
)

// ErrStoreCorrupt is returned for any document that cannot be decoded into
// a valid store.
var ErrStoreCorrupt = errors.New("store document is corrupt")

// Meta is the document header.
type Meta struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

// Document is the on-disk layout.
type Document struct {
	Meta     Meta                  `json:"_meta"`
	Clients  []model.Client        `json:"clients"`
	Accounts []model.AccountRecord `json:"accounts"`
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC().Round(0) }

// Save encodes state as an indented JSON document.
func Save(state model.State) ([]byte, error) {
	doc := Document{
		Meta:     Meta{Format: Format, Version: Version, SavedAt: now()},
		Clients:  state.Clients,
		Accounts: state.Accounts,
	}
	if doc.Clients == nil {
		doc.Clients = []model.Client{}
	}
	if doc.Accounts == nil {
		doc.Accounts = []model.AccountRecord{}
	}
	for i := range doc.Accounts {
		if doc.Accounts[i].Movements == nil {
			doc.Accounts[i].Movements = []model.Movement{}
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding store: %w", err)
	}
	return append(data, '\n'), nil
}

// Load decodes a document. Anything malformed, of an unknown format, or
// breaking a structural invariant is reported as ErrStoreCorrupt.
func Load(data []byte) (model.State, error) {
	state, err := Decode(data)
	if err != nil {
		return model.State{}, err
	}
	if err := checkStructure(state); err != nil {
		return model.State{}, err
	}
	return state, nil
}

// Decode parses a document without checking ledger invariants, for tools
// that report violations instead of refusing the document.
func Decode(data []byte) (model.State, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return model.State{}, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if doc.Meta.Format != Format {
		return model.State{}, fmt.Errorf("%w: format %q", ErrStoreCorrupt, doc.Meta.Format)
	}
	if doc.Meta.Version != Version {
		return model.State{}, fmt.Errorf("%w: unsupported version %d", ErrStoreCorrupt, doc.Meta.Version)
	}

	for _, acct := range doc.Accounts {
		if _, err := model.ParseVariantKind(string(acct.Variant)); err != nil {
			return model.State{}, fmt.Errorf("%w: account %s: %v", ErrStoreCorrupt, acct.Number, err)
		}
	}

	return model.State{Clients: doc.Clients, Accounts: doc.Accounts}, nil
}

func checkStructure(state model.State) error {
	errs := verify.Structural(verify.Validate(state))
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w: %s", ErrStoreCorrupt, strings.Join(msgs, "; "))
}
