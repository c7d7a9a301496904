// Package sessioncodec encodes session payloads into a stable, self-describing CBOR blob.
//
// Payloads are written as string-keyed CBOR maps. Decoding ignores keys it does not know and
// leaves absent keys at their zero value, so payload shapes can grow without invalidating
// records already sitting in a store.
package sessioncodec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
)

// ErrDecode is the sentinel wrapped by every decode failure.
var ErrDecode = errors.New("sessioncodec: decode payload")

// maxPayloadBytes bounds what Decode will look at; session payloads are a handful of short strings.
const maxPayloadBytes = 64 << 10

// cborMajorMap is the CBOR major type of a map (RFC 8949 section 3.1).
const cborMajorMap = 5

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sessioncodec: build encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxNestedLevels:   4,
		MaxMapPairs:       64,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("sessioncodec: build decoder: %v", err))
	}
}

// Encode serializes p, stamping the current payload version.
func Encode(p domainauth.Payload) ([]byte, error) {
	p.Version = domainauth.PayloadVersion
	b, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("sessioncodec: encode payload: %w", err)
	}
	return b, nil
}

// Decode parses b into a payload. Failures are returned as a payload_corrupt AppError
// wrapping ErrDecode; Decode never panics on hostile input.
func Decode(b []byte) (p domainauth.Payload, err error) {
	if len(b) == 0 {
		return domainauth.Payload{}, apperrors.PayloadCorrupt(fmt.Errorf("%w: empty input", ErrDecode))
	}
	if len(b) > maxPayloadBytes {
		return domainauth.Payload{}, apperrors.PayloadCorrupt(fmt.Errorf("%w: %d bytes exceeds limit", ErrDecode, len(b)))
	}
	if majorType := b[0] >> 5; majorType != cborMajorMap {
		return domainauth.Payload{}, apperrors.PayloadCorrupt(fmt.Errorf("%w: top-level item is not a map", ErrDecode))
	}
	defer func() {
		if r := recover(); r != nil {
			p = domainauth.Payload{}
			err = apperrors.PayloadCorrupt(fmt.Errorf("%w: %v", ErrDecode, r))
		}
	}()
	if uerr := decMode.Unmarshal(b, &p); uerr != nil {
		return domainauth.Payload{}, apperrors.PayloadCorrupt(fmt.Errorf("%w: %w", ErrDecode, uerr))
	}
	return p, nil
}
