package bridge

import (
	"errors"

	"github.com/rony4d/go-opera-bridge/utils/cser"
)

// eventVersion is the journal record layout written by MarshalBinary.
const eventVersion = 1

var ErrUnknownEventVersion = errors.New("unknown event record version")

const (
	// MaxRecipientSize bounds the foreign-chain recipient of a Lock.
	MaxRecipientSize = 1024
	// MaxAssetNameSize bounds the name of a wrapped asset.
	MaxAssetNameSize = 256
)

// MarshalCSER writes the journal record of e.
func (e *Event) MarshalCSER(w *cser.Writer) error {
	switch e.Kind {
	case EventLock, EventUnlock, EventRegisterAsset:
	default:
		return ErrUnknownEvent
	}
	if len(e.Recipient) > MaxRecipientSize || len(e.Name) > MaxAssetNameSize {
		return cser.ErrTooLargeAlloc
	}
	w.U8(eventVersion)
	w.U64(e.Seq)
	w.U8(uint8(e.Kind))
	w.SliceBytes(e.Recipient)
	w.FixedBytes(e.Asset[:])
	w.BigInt(e.Amount)
	w.SliceBytes([]byte(e.Name))
	return nil
}

// UnmarshalCSER reads a record written by MarshalCSER.
func (e *Event) UnmarshalCSER(r *cser.Reader) error {
	if v := r.U8(); v != eventVersion {
		return ErrUnknownEventVersion
	}
	e.Seq = r.U64()
	e.Kind = EventKind(r.U8())
	switch e.Kind {
	case EventLock, EventUnlock, EventRegisterAsset:
	default:
		return ErrUnknownEvent
	}
	e.Recipient = nil
	if rec := r.SliceBytes(MaxRecipientSize); len(rec) > 0 {
		e.Recipient = rec
	}
	r.FixedBytes(e.Asset[:])
	e.Amount = r.BigInt()
	e.Name = string(r.SliceBytes(MaxAssetNameSize))
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Event) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(e.MarshalCSER)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Event) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, e.UnmarshalCSER)
}
