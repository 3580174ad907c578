package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// network families a chain can belong to, crossing between two
// different relay families means crossing the bridge
type NetworkFamily string

const (
	FamilyRelayA     NetworkFamily = "relay-network-a"
	FamilyRelayB     NetworkFamily = "relay-network-b"
	FamilyEVM        NetworkFamily = "evm"
	FamilySettlement NetworkFamily = "settlement-native"
)

// Chain is registry reference data, never mutated by the engine
type Chain struct {
	ID                string        `yaml:"id" json:"id"`
	Name              string        `yaml:"name" json:"name"`
	Family            NetworkFamily `yaml:"family" json:"family"`
	ChainID           int64         `yaml:"chain_id" json:"chainId"`
	AddressEncodings  []string      `yaml:"address_encodings" json:"addressEncodings"`
	WalletFamily      string        `yaml:"wallet_family" json:"walletFamily"`
	NativeToken       string        `yaml:"native_token" json:"nativeToken"`
	RPCList           []string      `yaml:"rpc" json:"-"`
	MinConfirmations  int           `yaml:"min_confirmations" json:"-"`
	ExplorerTxPattern string        `yaml:"explorer_tx" json:"-"`
}

func (c Chain) IsEVM() bool {
	return c.Family == FamilyEVM
}

type TokenOrigin struct {
	Network   string `yaml:"network" json:"network"`
	WrappedBy string `yaml:"wrapped_by" json:"wrappedBy,omitempty"`
}

type Token struct {
	ID       string      `yaml:"id" json:"id"`
	Symbol   string      `yaml:"symbol" json:"symbol"`
	Decimals int32       `yaml:"decimals" json:"decimals"`
	Contract string      `yaml:"contract" json:"contract,omitempty"`
	Origin   TokenOrigin `yaml:"origin" json:"origin"`
}

// TransferParams is what a caller asks for. Amount is in the source token's
// smallest unit.
type TransferParams struct {
	SourceChain      string   `json:"sourceChain" validate:"required"`
	DestinationChain string   `json:"destinationChain" validate:"required,nefield=SourceChain"`
	SourceToken      string   `json:"sourceToken" validate:"required"`
	DestinationToken string   `json:"destinationToken" validate:"required"`
	Amount           *big.Int `json:"amount"`
	Sender           string   `json:"sender" validate:"required"`
	Recipient        string   `json:"recipient" validate:"required"`
	Fees             []FeeLeg `json:"fees,omitempty"`
}

func (p TransferParams) IsSwap() bool {
	return p.SourceToken != p.DestinationToken
}

type FeeTitle string

const (
	FeeExecution FeeTitle = "Execution fees"
	FeeDelivery  FeeTitle = "Delivery fees"
	FeeBridging  FeeTitle = "Bridging fees"
	FeeRouting   FeeTitle = "Routing fees"
	FeeSwap      FeeTitle = "Swap fees"
	FeeTransfer  FeeTitle = "Transfer fees"
	FeeBroker    FeeTitle = "Broker fees"
	FeeDeposit   FeeTitle = "Deposit fees"
)

type Sufficiency string

const (
	Sufficient   Sufficiency = "sufficient"
	Insufficient Sufficiency = "insufficient"
	Undetermined Sufficiency = "undetermined"
)

type Amount struct {
	Token string              `json:"token"`
	Value *big.Int            `json:"value"`
	USD   decimal.NullDecimal `json:"usd"`
}

// FeeLeg is one priced component of a fee schedule
type FeeLeg struct {
	Title       FeeTitle    `json:"title"`
	Chain       string      `json:"chain"`
	Amount      Amount      `json:"amount"`
	Sufficiency Sufficiency `json:"sufficiency"`
}

// Correlation ids matched against backend status records, in this priority order
type Correlation struct {
	MessageHash     string `json:"messageHash,omitempty"`
	MessageID       string `json:"messageId,omitempty"`
	SubmissionIndex string `json:"submissionIndex,omitempty"`
}

func (c Correlation) Empty() bool {
	return c.MessageHash == "" && c.MessageID == "" && c.SubmissionIndex == ""
}

// Merge fills empty ids of c from o, existing ids are kept
func (c Correlation) Merge(o Correlation) Correlation {
	if c.MessageHash == "" {
		c.MessageHash = o.MessageHash
	}
	if c.MessageID == "" {
		c.MessageID = o.MessageID
	}
	if c.SubmissionIndex == "" {
		c.SubmissionIndex = o.SubmissionIndex
	}
	return c
}

type TrackingStatus string

const (
	StatusPending                   TrackingStatus = "Pending"
	StatusArrivingAtIntermediateHop TrackingStatus = "ArrivingAtIntermediateHop"
	StatusArrivingAtDestination     TrackingStatus = "ArrivingAtDestination"
	StatusCompleted                 TrackingStatus = "Completed"
	StatusFailed                    TrackingStatus = "Failed"
	StatusUnknown                   TrackingStatus = "Unknown"
)

// Rank orders statuses along a transfer's life, Unknown has no rank
func (s TrackingStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusArrivingAtIntermediateHop:
		return 2
	case StatusArrivingAtDestination:
		return 3
	case StatusCompleted, StatusFailed:
		return 4
	default:
		return 0
	}
}

func (s TrackingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Result string

const (
	ResultSucceeded Result = "Succeeded"
	ResultFailed    Result = "Failed"
	ResultUndefined Result = "Undefined"
)

// current persisted record shape, see storage/migrate.go for older ones
const SchemaVersion = 3

// OngoingTransfer is a submitted transfer that has not reached a terminal status
type OngoingTransfer struct {
	SchemaVersion int            `json:"schemaVersion"`
	ID            string         `json:"id"`
	Backend       string         `json:"backend"`
	Params        TransferParams `json:"params"`
	Correlation   Correlation    `json:"correlation"`
	Status        string         `json:"status"` // human readable, backend wording
	Tracking      TrackingStatus `json:"tracking"`
	CreatedAt     time.Time      `json:"createdAt"`
	FinalizedAt   *time.Time     `json:"finalizedAt,omitempty"`
}

// Clone returns a copy sharing no pointers with t
func (t *OngoingTransfer) Clone() *OngoingTransfer {
	c := *t
	if t.Params.Amount != nil {
		c.Params.Amount = new(big.Int).Set(t.Params.Amount)
	}
	if t.Params.Fees != nil {
		c.Params.Fees = make([]FeeLeg, len(t.Params.Fees))
		for i, leg := range t.Params.Fees {
			if leg.Amount.Value != nil {
				leg.Amount.Value = new(big.Int).Set(leg.Amount.Value)
			}
			c.Params.Fees[i] = leg
		}
	}
	if t.FinalizedAt != nil {
		at := *t.FinalizedAt
		c.FinalizedAt = &at
	}
	return &c
}

// CompletedTransfer is appended once and never changed
type CompletedTransfer struct {
	SchemaVersion int             `json:"schemaVersion"`
	Transfer      OngoingTransfer `json:"transfer"`
	Result        Result          `json:"result"`
	ExplorerLink  string          `json:"explorerLink,omitempty"`
	CompletedAt   time.Time       `json:"completedAt"`
}
