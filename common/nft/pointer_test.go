package nft

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestOpaqueRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(p)) == p for opaque pointers", prop.ForAll(
		func(nonce uint32, payload []byte) bool {
			encoded, err := EncodeOpaque(OpaquePointer{ChainNonce: nonce, Payload: payload})
			if err != nil {
				return false
			}
			decoded, err := DecodeOpaque(encoded)
			if err != nil {
				return false
			}
			return decoded.ChainNonce == nonce && bytes.Equal(decoded.Payload, payload)
		},
		gen.UInt32(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestEvmRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(p)) == p for evm pointers", prop.ForAll(
		func(erc1155 bool, tokenID uint64, contract []byte) bool {
			kind := ERC721
			if erc1155 {
				kind = ERC1155
			}
			p := EvmPointer{
				Kind:     kind,
				TokenID:  strconv.FormatUint(tokenID, 10),
				Contract: "0x" + hex.EncodeToString(contract),
			}
			encoded, err := EncodeEvm(p)
			if err != nil {
				return false
			}
			decoded, err := DecodeEvm(encoded)
			if err != nil {
				return false
			}
			return decoded == p
		},
		gen.Bool(),
		gen.UInt64(),
		gen.SliceOfN(20, gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestEncodeOpaqueLayout(t *testing.T) {
	encoded, err := EncodeOpaque(OpaquePointer{ChainNonce: 5, Payload: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0, 3, 0, 0, 0, 'a', 'b', 'c'}, encoded)
}

func TestEncodeEvmLayout(t *testing.T) {
	encoded, err := EncodeEvm(EvmPointer{Kind: ERC1155, TokenID: "42", Contract: testContract})
	require.NoError(t, err)

	want := []byte{1, 2, 0, 0, 0, '4', '2', 42, 0, 0, 0}
	want = append(want, testContract...)
	assert.Equal(t, want, encoded)
}

func TestLargeTokenIDSurvives(t *testing.T) {
	p := EvmPointer{
		Kind:     ERC721,
		TokenID:  "115792089237316195423570985008687907853269984665640564039457584007913129639935",
		Contract: testContract,
	}
	encoded, err := EncodeEvm(p)
	require.NoError(t, err)

	decoded, err := DecodeEvm(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)

	id, err := decoded.TokenIDInt()
	require.NoError(t, err)
	assert.Equal(t, p.TokenID, id.String())
}

func TestWrongShapeIsRejected(t *testing.T) {
	evmEncoded, err := EncodeEvm(EvmPointer{Kind: ERC721, TokenID: "1", Contract: testContract})
	require.NoError(t, err)
	_, err = DecodeOpaque(evmEncoded)
	assert.True(t, errors.Is(err, commonerrors.ErrUnknownPointerShape))

	opaqueEncoded, err := EncodeOpaque(OpaquePointer{ChainNonce: 5, Payload: []byte("abc")})
	require.NoError(t, err)
	_, err = DecodeEvm(opaqueEncoded)
	assert.True(t, errors.Is(err, commonerrors.ErrUnknownPointerShape))
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	valid, err := EncodeOpaque(OpaquePointer{ChainNonce: 1, Payload: []byte{9}})
	require.NoError(t, err)

	cases := map[string]func() error{
		"empty opaque": func() error {
			_, err := DecodeOpaque(nil)
			return err
		},
		"truncated opaque": func() error {
			_, err := DecodeOpaque(valid[:len(valid)-1])
			return err
		},
		"trailing bytes": func() error {
			_, err := DecodeOpaque(append(append([]byte{}, valid...), 0))
			return err
		},
		"unknown kind": func() error {
			raw, _ := encode(EvmPointer{Kind: 7, TokenID: "1", Contract: testContract})
			_, err := DecodeEvm(raw)
			return err
		},
		"non decimal token id": func() error {
			raw, _ := encode(EvmPointer{Kind: ERC721, TokenID: "0x01", Contract: testContract})
			_, err := DecodeEvm(raw)
			return err
		},
		"bad contract": func() error {
			raw, _ := encode(EvmPointer{Kind: ERC721, TokenID: "1", Contract: "erd1qqq"})
			_, err := DecodeEvm(raw)
			return err
		},
	}

	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			err := run()
			require.Error(t, err)
			assert.True(t, errors.Is(err, commonerrors.ErrUnknownPointerShape))
		})
	}
}

func TestEncodeEvmValidates(t *testing.T) {
	_, err := EncodeEvm(EvmPointer{Kind: ERC721, TokenID: "-1", Contract: testContract})
	assert.True(t, errors.Is(err, commonerrors.ErrUnknownPointerShape))
}
