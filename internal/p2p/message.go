package p2p

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/ledger"
)

// MessageType is the wire tag of a protocol message.
type MessageType string

// Protocol message tags.
const (
	TypeQueryLatest         MessageType = "QUERY_LATEST"
	TypeQueryAll            MessageType = "QUERY_ALL"
	TypeResponseLatestBlock MessageType = "RESPONSE_LATEST_BLOCK"
	TypeResponseBlockchain  MessageType = "RESPONSE_BLOCKCHAIN"
	TypeNewTransaction      MessageType = "NEW_TRANSACTION"
	TypeNewBlock            MessageType = "NEW_BLOCK"
)

var (
	// ErrNetwork marks transport failures such as a failed dial.
	ErrNetwork = errors.New("network error")

	// ErrMalformedMessage marks inbound data that is not a valid protocol message.
	ErrMalformedMessage = errors.New("malformed message")
)

// Message is one of the six protocol messages. Only types in this package
// implement it.
type Message interface {
	Type() MessageType
	message()
}

// QueryLatest asks a peer for its tip.
type QueryLatest struct{}

// QueryAll asks a peer for its whole chain.
type QueryAll struct{}

// ResponseLatestBlock carries a peer's tip.
type ResponseLatestBlock struct {
	Block *ledger.Block
}

// ResponseBlockchain carries a peer's whole chain.
type ResponseBlockchain struct {
	Blocks []*ledger.Block
}

// NewTransaction announces a transaction.
type NewTransaction struct {
	Transaction *ledger.Transaction
}

// NewBlock announces a block.
type NewBlock struct {
	Block *ledger.Block
}

func (QueryLatest) Type() MessageType         { return TypeQueryLatest }
func (QueryAll) Type() MessageType            { return TypeQueryAll }
func (ResponseLatestBlock) Type() MessageType { return TypeResponseLatestBlock }
func (ResponseBlockchain) Type() MessageType  { return TypeResponseBlockchain }
func (NewTransaction) Type() MessageType      { return TypeNewTransaction }
func (NewBlock) Type() MessageType            { return TypeNewBlock }

func (QueryLatest) message()         {}
func (QueryAll) message()            {}
func (ResponseLatestBlock) message() {}
func (ResponseBlockchain) message()  {}
func (NewTransaction) message()      {}
func (NewBlock) message()            {}

// envelope is the JSON frame every message travels in.
type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serializes m into its {type, data} frame.
func Encode(m Message) ([]byte, error) {
	var payload interface{}
	switch v := m.(type) {
	case QueryLatest, QueryAll:
	case ResponseLatestBlock:
		payload = v.Block
	case ResponseBlockchain:
		blocks := v.Blocks
		if blocks == nil {
			blocks = []*ledger.Block{}
		}
		payload = blocks
	case NewTransaction:
		payload = v.Transaction
	case NewBlock:
		payload = v.Block
	default:
		return nil, errors.Newf("unsupported message %T", m)
	}

	env := envelope{Type: m.Type()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", m.Type())
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a frame. Any error it returns matches ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed(err, "decode envelope")
	}

	switch env.Type {
	case TypeQueryLatest:
		return QueryLatest{}, nil
	case TypeQueryAll:
		return QueryAll{}, nil
	case TypeResponseLatestBlock:
		b, err := decodeBlock(env)
		if err != nil {
			return nil, err
		}
		return ResponseLatestBlock{Block: b}, nil
	case TypeNewBlock:
		b, err := decodeBlock(env)
		if err != nil {
			return nil, err
		}
		return NewBlock{Block: b}, nil
	case TypeResponseBlockchain:
		var blocks []*ledger.Block
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &blocks); err != nil {
				return nil, malformed(err, "decode chain")
			}
		}
		for i, b := range blocks {
			if b == nil {
				return nil, errors.Mark(errors.Newf("chain entry %d is null", i), ErrMalformedMessage)
			}
			if err := checkTransactions(b); err != nil {
				return nil, errors.Wrapf(err, "chain entry %d", i)
			}
		}
		return ResponseBlockchain{Blocks: blocks}, nil
	case TypeNewTransaction:
		var tx *ledger.Transaction
		if err := json.Unmarshal(env.Data, &tx); err != nil {
			return nil, malformed(err, "decode transaction")
		}
		if tx == nil {
			return nil, errors.Mark(errors.New("transaction payload is missing"), ErrMalformedMessage)
		}
		return NewTransaction{Transaction: tx}, nil
	default:
		return nil, errors.Mark(errors.Newf("unknown message type %q", env.Type), ErrMalformedMessage)
	}
}

func decodeBlock(env envelope) (*ledger.Block, error) {
	var b *ledger.Block
	if err := json.Unmarshal(env.Data, &b); err != nil {
		return nil, malformed(err, "decode block")
	}
	if b == nil {
		return nil, errors.Mark(errors.Newf("%s without a block", env.Type), ErrMalformedMessage)
	}
	if err := checkTransactions(b); err != nil {
		return nil, err
	}
	return b, nil
}

// checkTransactions rejects a block carrying null transactions.
func checkTransactions(b *ledger.Block) error {
	for i, tx := range b.Transactions {
		if tx == nil {
			return errors.Mark(errors.Newf("block %s transaction %d is null", b.Hash, i), ErrMalformedMessage)
		}
	}
	return nil
}

func malformed(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrMalformedMessage)
}
