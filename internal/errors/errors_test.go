package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "loading .env"))
	assert.NoError(t, Wrapf(nil, "opening store %s", "x.db"))
	assert.NoError(t, DatabaseError(nil, "failed to query rounds"))
}

func TestWrapAddsContext(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, "reading stored rounds")
	assert.EqualError(t, err, "reading stored rounds: unexpected EOF")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = Wrapf(io.EOF, "opening store %s", "hilo.db")
	assert.EqualError(t, err, "opening store hilo.db: EOF")
	assert.ErrorIs(t, err, io.EOF)
}

func TestDatabaseErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := DatabaseError(cause, "failed to save forecast")

	assert.EqualError(t, err, "failed to save forecast: database error: database is locked")
	assert.ErrorIs(t, err, ErrDatabaseError)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsContractViolation(err))
}

func TestFeedErrorUnwrapsToUpstreamFetch(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(NewFeedError("http", 0, "request failed", cause), "fetching rounds")

	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, cause)

	var fe *FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "http", fe.Source)

	bare := NewFeedError("http", 503, "bad status", nil)
	assert.ErrorIs(t, bare, ErrUpstreamFetch)
	assert.Equal(t, "feed error [http] status=503: bad status", bare.Error())
}

func TestIsContractViolation(t *testing.T) {
	assert.True(t, IsContractViolation(fmt.Errorf("%w: %d", ErrInvalidLookback, -1)))
	assert.True(t, IsContractViolation(ErrNilHistory))
	assert.True(t, IsContractViolation(Wrap(NewValidationError("lookback", "x", "must be an integer"), "parsing query")))
	assert.False(t, IsContractViolation(ErrUpstreamFetch))
	assert.False(t, IsContractViolation(nil))
}
