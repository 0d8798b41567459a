/*

This file contains the immutable change record emitted by every state-changing
operation. Records are the only way collaborators observe activity.

*/

package types

// ChangeKind names the operation that produced a record.
type ChangeKind string

const (
	KindPoolCreated       ChangeKind = "pool_created"
	KindDeposit           ChangeKind = "deposit"
	KindWithdraw          ChangeKind = "withdraw"
	KindSwap              ChangeKind = "swap"
	KindFeesClaimed       ChangeKind = "fees_claimed"
	KindProtocolFees      ChangeKind = "protocol_fees_distributed"
	KindPoolUpdated       ChangeKind = "pool_updated"
	KindPriceUpdated      ChangeKind = "price_updated"
	KindReputationUpdated ChangeKind = "reputation_updated"
	KindUpdaterGranted    ChangeKind = "updater_granted"
	KindUpdaterRevoked    ChangeKind = "updater_revoked"
	KindCredentialLinked  ChangeKind = "credential_linked"
)

// ChangeRecord carries before/after values as decimal strings keyed by field name.
type ChangeRecord struct {
	ID          string            `json:"id"`
	Kind        ChangeKind        `json:"kind"`
	Asset       string            `json:"asset,omitempty"`
	Credential  string            `json:"credential,omitempty"`
	Participant string            `json:"participant"`
	Before      map[string]string `json:"before,omitempty"`
	After       map[string]string `json:"after,omitempty"`
	Amounts     map[string]string `json:"amounts,omitempty"`
	Timestamp   int64             `json:"timestamp"`
}
