package kverr

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindNamesRoundTrip(t *testing.T) {
	kinds := []Kind{IO, InvalidArgument, KeyNotFound, Serde, UnknownCommand, WrongFormat, Index, Engine, Encoding, Parse}
	for _, k := range kinds {
		got, err := ParseKind(k.String())
		require.Nil(t, err)
		assert.Equal(t, k, got)
	}
}

func TestParseKindRejectsUnknownToken(t *testing.T) {
	_, err := ParseKind("NoSuchKind")
	require.NotNil(t, err)
	assert.Equal(t, Parse, KindOf(err))
}

func TestKindOf(t *testing.T) {
	t.Run("bare kind", func(t *testing.T) {
		assert.Equal(t, KeyNotFound, KindOf(New(KeyNotFound)))
	})
	t.Run("wrapped cause survives classification", func(t *testing.T) {
		err := Wrap(io.ErrUnexpectedEOF, Serde)
		assert.Equal(t, Serde, KindOf(err))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
	t.Run("classification survives further wrapping", func(t *testing.T) {
		err := errors.Wrap(New(Index), "reading record")
		assert.Equal(t, Index, KindOf(err))
		assert.True(t, IsKind(err, Index))
	})
	t.Run("unclassified errors default to IO", func(t *testing.T) {
		assert.Equal(t, IO, KindOf(io.EOF))
	})
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "KeyNotFound", New(KeyNotFound).Error())
	assert.Equal(t, `Serde: line 3`, Newf(Serde, "line %d", 3).Error())
	assert.Equal(t, `Index: unexpected EOF`, Wrap(io.ErrUnexpectedEOF, Index).Error())
}
