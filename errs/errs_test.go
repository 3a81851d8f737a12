package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsOpKindAndCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NoDataAvailable("render.Render", cause)
	assert.Equal(t, "render.Render: no_data_available: boom", err.Error())
}

func TestErrorFormatsWithoutCause(t *testing.T) {
	err := &Error{Kind: KindNoCatalogAvailable, Op: "render.Render"}
	assert.Equal(t, "render.Render: no_catalog_available", err.Error())
}

func TestErrorsIsMatchesByKindAgainstSentinel(t *testing.T) {
	err := NoDataAvailable("mosaic.Composite", fmt.Errorf("empty"))
	assert.True(t, errors.Is(err, ErrNoDataAvailable))
	assert.False(t, errors.Is(err, ErrInvalidTileRequest))
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := DataReadFailed("source.Read", cause)
	assert.ErrorIs(t, err, cause)
}

func TestEachConstructorUsesItsOwnKind(t *testing.T) {
	cases := []struct {
		kind Kind
		err  *Error
	}{
		{KindInvalidTileRequest, InvalidTileRequest("op", nil)},
		{KindNoDataAvailable, NoDataAvailable("op", nil)},
		{KindNoCatalogAvailable, NoCatalogAvailable("op", nil)},
		{KindDataReadFailed, DataReadFailed("op", nil)},
		{KindInternalInvariant, InternalInvariant("op", nil)},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, c.err.Kind)
	}
}
