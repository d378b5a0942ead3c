package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqlang/cq/internal/errs"
)

func TestErrorMessageIncludesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := errs.New(errs.RegexCompile, "invalid -R pattern", cause)

	assert.Equal(t, "RegexCompile: invalid -R pattern: boom", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestIsMatchesByKind(t *testing.T) {
	err := errs.New(errs.PatternSyntax, "empty pattern", nil)

	assert.True(t, errors.Is(err, errs.ErrPatternSyntax))
	assert.False(t, errors.Is(err, errs.ErrRegexCompile))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "UnsupportedConstruct", errs.UnsupportedConstruct.String())
	require.Equal(t, "Unknown", errs.Kind(99).String())
}
