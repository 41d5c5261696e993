package model

// Client is a registered identity. The account it owns is found through
// AccountRecord.Owner, never stored here.
type Client struct {
	Identifier     string `json:"identifier"`
	DisplayName    string `json:"display_name"`
	CredentialHash []byte `json:"credential_hash"`
}

// State is the full contents of a ledger store, in stable order.
type State struct {
	Clients  []Client        `json:"clients"`
	Accounts []AccountRecord `json:"accounts"`
}
