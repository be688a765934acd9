package ledger

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
)

// Kind identifies what a transaction does to balances.
type Kind string

// Transaction kinds.
const (
	KindMint     Kind = "mint"
	KindTransfer Kind = "transfer"
	KindBurn     Kind = "burn"
)

// Fee schedule.
const (
	TransferFeeRate = 0.001
	DefaultFee      = 0.01
)

// Signer derives addresses from private keys and signs hashes with them.
type Signer interface {
	DeriveAddress(privateKey string) (string, error)
	Sign(hash, privateKey string) (string, error)
}

// Verifier checks a signature over a hash against an address.
type Verifier interface {
	Verify(hash, signature, address string) (bool, error)
}

// KeyManager is the full key capability used by nodes that sign and verify.
type KeyManager interface {
	Signer
	Verifier
}

// Transaction is a single value record. An empty From or To means the field
// is absent (null on the wire).
type Transaction struct {
	ID        string
	From      string
	To        string
	Amount    float64
	Kind      Kind
	Timestamp int64 // unix milliseconds
	Nonce     uint64
	Signature string
}

// NewTransaction creates a transaction stamped with the current time and a
// random nonce. The address fields must match the kind.
func NewTransaction(kind Kind, from, to string, amount float64) (*Transaction, error) {
	tx := newTransactionAt(kind, from, to, amount, nowMillis(), rand.Uint64())
	if err := tx.validateShape(); err != nil {
		return nil, err
	}
	return tx, nil
}

// NewMint creates a mint of amount to the given address.
func NewMint(to string, amount float64) (*Transaction, error) {
	return NewTransaction(KindMint, "", to, amount)
}

// NewTransfer creates an unsigned transfer.
func NewTransfer(from, to string, amount float64) (*Transaction, error) {
	return NewTransaction(KindTransfer, from, to, amount)
}

// NewBurn creates an unsigned burn of amount held by from.
func NewBurn(from string, amount float64) (*Transaction, error) {
	return NewTransaction(KindBurn, from, "", amount)
}

func newTransactionAt(kind Kind, from, to string, amount float64, timestamp int64, nonce uint64) *Transaction {
	tx := &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		Timestamp: timestamp,
		Nonce:     nonce,
	}
	tx.ID = tx.CalculateHash()
	return tx
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// CalculateHash returns the hex SHA-256 digest of every field except the
// signature and the id. It doubles as the signable hash.
func (tx *Transaction) CalculateHash() string {
	payload := nullable(tx.From) +
		nullable(tx.To) +
		strconv.FormatFloat(tx.Amount, 'f', -1, 64) +
		string(tx.Kind) +
		strconv.FormatInt(tx.Timestamp, 10) +
		strconv.FormatUint(tx.Nonce, 10)
	return sha256Hex(payload)
}

func nullable(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func sha256Hex(s string) string {
	return hex.EncodeToString(chainhash.HashB([]byte(s)))
}

// Fee returns the fee charged to the sender. Fees are not credited to anyone.
func (tx *Transaction) Fee() float64 {
	switch tx.Kind {
	case KindTransfer:
		return tx.Amount * TransferFeeRate
	case KindMint, KindBurn:
		return 0
	default:
		return DefaultFee
	}
}

// Sign signs the transaction with privateKey. The key must derive to the
// sender address.
func (tx *Transaction) Sign(signer Signer, privateKey string) error {
	address, err := signer.DeriveAddress(privateKey)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "derive address"), ErrSignatureMismatch)
	}
	if address != tx.From {
		return errors.Wrapf(ErrSignatureMismatch, "key derives %s, sender is %s", address, nullable(tx.From))
	}

	sig, err := signer.Sign(tx.CalculateHash(), privateKey)
	if err != nil {
		return errors.Wrap(err, "sign transaction")
	}
	tx.Signature = sig
	return nil
}

// IsValid reports whether the transaction carries a good signature. A mint
// without a sender needs none. A missing signature is an error; a verifier
// failure is logged and reported as invalid.
func (tx *Transaction) IsValid(v Verifier) (bool, error) {
	if tx.Kind == KindMint && tx.From == "" {
		return true, nil
	}
	if tx.Signature == "" {
		return false, errors.Wrapf(ErrValidation, "transaction %s is not signed", tx.ID)
	}

	ok, err := v.Verify(tx.CalculateHash(), tx.Signature, tx.From)
	if err != nil {
		log.Warnf("Signature check for transaction %s failed: %v", tx.ID, err)
		return false, nil
	}
	return ok, nil
}

// validateShape checks amount and the address fields required by the kind.
func (tx *Transaction) validateShape() error {
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount <= 0 {
		return errors.Wrapf(ErrValidation, "amount must be positive, got %v", tx.Amount)
	}

	switch tx.Kind {
	case KindMint:
		if tx.From != "" {
			return errors.Wrap(ErrValidation, "mint must not have a sender")
		}
		if tx.To == "" {
			return errors.Wrap(ErrValidation, "mint requires a recipient")
		}
	case KindTransfer:
		if tx.From == "" || tx.To == "" {
			return errors.Wrap(ErrValidation, "transfer requires sender and recipient")
		}
	case KindBurn:
		if tx.From == "" {
			return errors.Wrap(ErrValidation, "burn requires a sender")
		}
		if tx.To != "" {
			return errors.Wrap(ErrValidation, "burn must not have a recipient")
		}
	default:
		return errors.Wrapf(ErrValidation, "unknown transaction type %q", tx.Kind)
	}
	return nil
}

// txJSON is the wire form of a transaction.
type txJSON struct {
	TxID        string  `json:"txId"`
	FromAddress *string `json:"fromAddress"`
	ToAddress   *string `json:"toAddress"`
	Amount      float64 `json:"amount"`
	Type        Kind    `json:"type"`
	Timestamp   int64   `json:"timestamp"`
	Nonce       uint64  `json:"nonce"`
	Signature   string  `json:"signature"`
	Fee         float64 `json:"fee"`
}

// MarshalJSON encodes the wire form, with absent addresses as null.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	w := txJSON{
		TxID:      tx.ID,
		Amount:    tx.Amount,
		Type:      tx.Kind,
		Timestamp: tx.Timestamp,
		Nonce:     tx.Nonce,
		Signature: tx.Signature,
		Fee:       tx.Fee(),
	}
	if tx.From != "" {
		from := tx.From
		w.FromAddress = &from
	}
	if tx.To != "" {
		to := tx.To
		w.ToAddress = &to
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form. The fee field is derived and ignored.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w txJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*tx = Transaction{
		ID:        w.TxID,
		Amount:    w.Amount,
		Kind:      w.Type,
		Timestamp: w.Timestamp,
		Nonce:     w.Nonce,
		Signature: w.Signature,
	}
	if w.FromAddress != nil {
		tx.From = *w.FromAddress
	}
	if w.ToAddress != nil {
		tx.To = *w.ToAddress
	}
	if tx.ID == "" {
		tx.ID = tx.CalculateHash()
	}
	return nil
}
