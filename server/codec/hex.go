package codec

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedHex is returned for hex text of odd length or containing a
// character that is not a hex digit.
var ErrMalformedHex = errors.New("malformed hex")

// ToHex renders b as uppercase hex digits with no separators.
func ToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// FromHex parses pairs of hex digits, in either case, into bytes.
func FromHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.Wrapf(ErrMalformedHex, "odd length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedHex, err.Error())
	}
	return b, nil
}
