package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashWithDomainDeterminism(t *testing.T) {
	data := []byte(`{"text":"SELECT 1"}`)

	h1 := HashWithDomain(DomainQuery, data)
	h2 := HashWithDomain(DomainQuery, data)

	assert.Equal(t, h1, h2, "hashing the same domain and data must be deterministic")
}

func TestHashWithDomainSeparatesDomains(t *testing.T) {
	data := []byte(`{"text":"SELECT 1"}`)

	queryHash := HashWithDomain(DomainQuery, data)
	fragmentHash := HashWithDomain(DomainFragment, data)
	whitelistHash := HashWithDomain(DomainWhitelist, data)

	assert.NotEqual(t, queryHash, fragmentHash)
	assert.NotEqual(t, queryHash, whitelistHash)
	assert.NotEqual(t, fragmentHash, whitelistHash)
}

func TestHashWithDomainNullSeparatorPreventsBoundaryConfusion(t *testing.T) {
	// "foo" + 0x00 + "bar" must not collide with "foob" + 0x00 + "ar"
	h1 := HashWithDomain("foo", []byte("bar"))
	h2 := HashWithDomain("foob", []byte("ar"))

	assert.NotEqual(t, h1, h2)
}

func TestHashWithDomainChangesWithData(t *testing.T) {
	h1 := HashWithDomain(DomainQuery, []byte("a"))
	h2 := HashWithDomain(DomainQuery, []byte("b"))

	assert.NotEqual(t, h1, h2)
}
