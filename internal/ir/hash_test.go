package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCanonicalDeterminism(t *testing.T) {
	a := IRObject{"seq": IRInt(1), "kind": IRString("RecordCreated")}
	b := IRObject{"kind": IRString("RecordCreated"), "seq": IRInt(1)}

	h1, err := HashCanonical(DomainEvent, a)
	require.NoError(t, err)
	h2, err := HashCanonical(DomainEvent, b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, HashWithDomain(DomainEvent, data), HashWithDomain(DomainState, data))
}

func TestHashCanonicalError(t *testing.T) {
	_, err := HashCanonical(DomainEvent, map[string]any{"x": 0.5})
	assert.Error(t, err)
}
