package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedNames(t *testing.T) {
	r := Resolved{Name: "name", Kind: KindDimension, Unit: "person", Via: "transaction/person:seller"}

	assert.Equal(t, "transaction/person:seller/name", r.ViaName())
	assert.Equal(t, "name", r.ExposedName())
	assert.Equal(t, "transaction/person:seller/name", r.ExposedViaName())
}

func TestResolvedMask(t *testing.T) {
	r := Resolved{Name: "person", Kind: KindIdentifier, Unit: "person:seller"}.WithMask("person:seller")

	assert.Equal(t, "person", r.Name, "mask must not replace the declared name")
	assert.Equal(t, "person:seller", r.ExposedName())
	assert.Equal(t, "person", r.ViaName())
	assert.Equal(t, "person:seller", r.ExposedViaName())
}

func TestResolvedAsVia(t *testing.T) {
	r := Resolved{Name: "name", Kind: KindDimension, Unit: "person"}

	hopped := r.AsVia("transaction", "person:seller")
	assert.Equal(t, "transaction/person:seller", hopped.Via)
	assert.Empty(t, r.Via, "copies must not mutate the original")

	again := hopped.AsVia("session")
	assert.Equal(t, "session/transaction/person:seller", again.Via)
}

func TestResolvedViaNext(t *testing.T) {
	r := Resolved{Name: "name", Via: "person:seller/geography"}

	next, head, ok := r.ViaNext()
	require.True(t, ok)
	assert.Equal(t, "person:seller", head)
	assert.Equal(t, "geography", next.Via)

	last, head, ok := next.ViaNext()
	require.True(t, ok)
	assert.Equal(t, "geography", head)
	assert.Empty(t, last.Via)

	_, _, ok = last.ViaNext()
	assert.False(t, ok, "nothing left to strip at the origin")
}

func TestResolvedAttributeCopies(t *testing.T) {
	r := Resolved{Name: "ds", Kind: KindPartition, Unit: "person"}

	private := r.AsPrivate()
	assert.True(t, private.Private)
	assert.False(t, r.Private)

	public := private.AsPublic()
	assert.False(t, public.Private)

	ext := r.AsExternal().AsImplicit()
	assert.True(t, ext.External)
	assert.True(t, ext.Implicit)
	assert.False(t, r.External)
	assert.False(t, r.Implicit)

	back := ext.AsInternal()
	assert.False(t, back.External)
}

func TestResolvedProvidedBy(t *testing.T) {
	p := testProvider(t)
	r := Resolved{Name: "value", Kind: KindMeasure, Providers: []*Provider{p}}

	assert.True(t, r.ProvidedBy("transactions"))
	assert.False(t, r.ProvidedBy("people"))
}
