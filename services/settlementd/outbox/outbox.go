package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/native/marketplace"
)

var (
	bucketTransfers = []byte("transfers")
	bucketPending   = []byte("pending")

	// ErrNotFound is returned when a transfer does not exist.
	ErrNotFound = errors.New("outbox: transfer not found")
	// ErrFull is returned when the pending queue is at capacity.
	ErrFull = errors.New("outbox: pending queue full")
	// ErrNotPending is returned when settling a transfer that already settled.
	ErrNotPending = errors.New("outbox: transfer not pending")
)

// Status is the lifecycle state of a queued transfer.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Record is a transfer queued for an external payer.
type Record struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Purpose   string    `json:"purpose"`
	Reference string    `json:"reference,omitempty"`
	Status    Status    `json:"status"`
	TxRef     string    `json:"txRef,omitempty"`
	Note      string    `json:"note,omitempty"`
	QueuedAt  time.Time `json:"queuedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transfer converts the record back into the marketplace representation.
func (r Record) Transfer() (marketplace.Transfer, error) {
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return marketplace.Transfer{}, fmt.Errorf("outbox: invalid amount %q", r.Amount)
	}
	return marketplace.Transfer{
		ID:        r.ID,
		To:        ethcommon.HexToAddress(r.To),
		Amount:    amount,
		Purpose:   r.Purpose,
		Reference: r.Reference,
	}, nil
}

// Outbox is a bbolt-backed marketplace.ValueSink. Accepted transfers are
// durable before Send returns and stay pending until the payer settles them.
type Outbox struct {
	db         *bolt.DB
	maxPending int
	now        func() time.Time
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithMaxPending bounds the pending queue. Zero means unbounded.
func WithMaxPending(n int) Option {
	return func(o *Outbox) { o.maxPending = n }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) {
		if now != nil {
			o.now = now
		}
	}
}

// Open initialises (and migrates) the outbox at path.
func Open(path string, opts ...Option) (*Outbox, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTransfers, bucketPending} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	o := &Outbox{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// Close releases the underlying Bolt database handle.
func (o *Outbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}

// Send implements marketplace.ValueSink. Resending a known id is a no-op.
func (o *Outbox) Send(ctx context.Context, t marketplace.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("outbox: transfer id required")
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return fmt.Errorf("outbox: transfer %s has no amount", t.ID)
	}
	now := o.now().UTC()
	return o.db.Update(func(tx *bolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		if transfers.Get([]byte(t.ID)) != nil {
			return nil
		}
		pending := tx.Bucket(bucketPending)
		if o.maxPending > 0 && countKeys(pending) >= o.maxPending {
			return ErrFull
		}
		rec := Record{
			ID:        t.ID,
			To:        t.To.Hex(),
			Amount:    t.Amount.String(),
			Purpose:   t.Purpose,
			Reference: t.Reference,
			Status:    StatusPending,
			QueuedAt:  now,
			UpdatedAt: now,
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := transfers.Put([]byte(t.ID), raw); err != nil {
			return err
		}
		return pending.Put([]byte(t.ID), []byte{})
	})
}

func countKeys(bucket *bolt.Bucket) int {
	n := 0
	cursor := bucket.Cursor()
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		n++
	}
	return n
}

// Get loads a transfer by id.
func (o *Outbox) Get(id string) (Record, error) {
	var rec Record
	err := o.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTransfers).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	return rec, err
}

// Pending lists up to limit pending transfers. A non-positive limit lists all.
func (o *Outbox) Pending(limit int) ([]Record, error) {
	out := make([]Record, 0)
	err := o.db.View(func(tx *bolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		cursor := tx.Bucket(bucketPending).Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			raw := transfers.Get(k)
			if raw == nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// MarkSent settles a pending transfer with the payer's reference.
func (o *Outbox) MarkSent(id, txRef string) (Record, error) {
	return o.settle(id, StatusSent, func(rec *Record) { rec.TxRef = strings.TrimSpace(txRef) })
}

// MarkFailed settles a pending transfer the payer could not execute.
func (o *Outbox) MarkFailed(id, note string) (Record, error) {
	return o.settle(id, StatusFailed, func(rec *Record) { rec.Note = strings.TrimSpace(note) })
}

func (o *Outbox) settle(id string, status Status, mutate func(*Record)) (Record, error) {
	var rec Record
	err := o.db.Update(func(tx *bolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		raw := transfers.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if rec.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrNotPending, id, rec.Status)
		}
		rec.Status = status
		rec.UpdatedAt = o.now().UTC()
		mutate(&rec)
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := transfers.Put([]byte(id), updated); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).Delete([]byte(id))
	})
	return rec, err
}
