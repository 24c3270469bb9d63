package nft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataID(t *testing.T) {
	cases := map[string]string{
		"https://meta.example/nft/42":  "42",
		"https://meta.example/nft/42/": "42",
		"https://meta.example/a/7?v=1": "7",
		"ipfs://QmHash/1.json":         "1.json",
		"https://meta.example":         "",
		"":                             "",
		"relative/path/99":             "99",
	}
	for uri, want := range cases {
		assert.Equal(t, want, MetadataID(uri), uri)
	}
}
