package solana

import (
	"encoding/binary"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// readU128 reads a little-endian u128 as an unbounded integer.
func readU128(decoder *bin.Decoder) (*big.Int, error) {
	v, err := decoder.ReadUint128(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	hi := new(big.Int).Lsh(new(big.Int).SetUint64(v.Hi), 64)
	return hi.Or(hi, new(big.Int).SetUint64(v.Lo)), nil
}

// writeU128 writes v as a little-endian u128. Negative or wider values are rejected.
func writeU128(encoder *bin.Encoder, v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
		return errors.Errorf("value %v does not fit in u128", v)
	}
	lo := new(big.Int).And(v, maxUint64).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return encoder.WriteUint128(bin.Uint128{Lo: lo, Hi: hi}, binary.LittleEndian)
}
