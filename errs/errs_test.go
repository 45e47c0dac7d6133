package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_AttachesDefaultRemediation(t *testing.T) {
	e := New(QueryInvalid, "multiple statements", nil)
	assert.Equal(t, QueryInvalid, e.Kind)
	assert.Contains(t, e.Remediation, "rephrase the question")
}

func TestNew_UnknownKindHasEmptyRemediation(t *testing.T) {
	e := New(Kind("Unknown"), "whatever", nil)
	assert.Empty(t, e.Remediation)
}

func TestError_FormatsWithAndWithoutWrappedErr(t *testing.T) {
	plain := New(ConfigInvalid, "bad yaml", nil)
	assert.Equal(t, "[ConfigInvalid] bad yaml", plain.Error())

	wrapped := New(ConfigInvalid, "bad yaml", errors.New("line 3: unexpected token"))
	assert.Contains(t, wrapped.Error(), "bad yaml")
	assert.Contains(t, wrapped.Error(), "line 3: unexpected token")
}

func TestError_UnwrapExposesUnderlyingErr(t *testing.T) {
	underlying := errors.New("connection refused")
	e := New(BackendUnreachable, "dial failed", underlying)
	assert.Same(t, underlying, errors.Unwrap(e))
}

func TestWithRawText_AttachesAndReturnsSameError(t *testing.T) {
	e := New(QueryInvalid, "bad query", nil).WithRawText("DROP TABLE users")
	assert.Equal(t, "DROP TABLE users", e.RawText)
}

func TestIs_MatchesWrappedKind(t *testing.T) {
	base := New(AuthExpired, "token expired", nil)
	wrapped := fmt.Errorf("refreshing session: %w", base)

	assert.True(t, Is(wrapped, AuthExpired))
	assert.False(t, Is(wrapped, AuthTimeout))
}

func TestIs_NonGatewayErrorReturnsFalse(t *testing.T) {
	assert.False(t, Is(errors.New("plain error"), ConfigInvalid))
}
