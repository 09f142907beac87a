package journal

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/escrowauction/core"
)

// Times keep nanosecond precision; the CBOR default truncates to seconds.
var encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// EncodePayload encodes an event payload as CBOR.
func EncodePayload(payload any) ([]byte, error) {
	data, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return data, nil
}

// Decode restores the typed payload of an event of the given kind.
func Decode(kind core.EventKind, data []byte) (any, error) {
	switch kind {
	case core.EventAuctionCreated:
		return decodeAs[core.AuctionCreated](kind, data)
	case core.EventBidAccepted:
		return decodeAs[core.BidAccepted](kind, data)
	case core.EventAuctionFinalized:
		return decodeAs[core.AuctionFinalized](kind, data)
	case core.EventCreditWithdrawn:
		return decodeAs[core.CreditWithdrawn](kind, data)
	case core.EventAssetReleased:
		return decodeAs[core.AssetReleased](kind, data)
	case core.EventPauseChanged:
		return decodeAs[core.PauseChanged](kind, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeAs[T any](kind core.EventKind, data []byte) (any, error) {
	var v T
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return v, nil
}
