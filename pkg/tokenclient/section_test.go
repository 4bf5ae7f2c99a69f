package tokenclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct{ Options }

type namedOptions struct{ Options }

func (*namedOptions) SectionName() string { return "MyCustomSection" }

type derivedFromNamed struct{ namedOptions }

type reservedOptions struct{ Options }

func (*reservedOptions) SectionName() string { return "tokenservice" }

type blankOptions struct{ Options }

func (*blankOptions) SectionName() string { return "  " }

func TestValidateSectionName(t *testing.T) {
	require.NoError(t, ValidateSectionName("Billing"))

	for _, name := range []string{"", " ", "\t"} {
		err := ValidateSectionName(name)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "Name cannot be null, empty, or whitespace. Please provide a valid section name.", cfgErr.Message)
	}

	for _, name := range []string{"TokenService", "tokenservice", "TOKENSERVICE"} {
		err := ValidateSectionName(name)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "Invalid section name TokenService. Use a different section name.", cfgErr.Message)
		assert.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestSectionNameFor(t *testing.T) {
	name, err := SectionNameFor[*namedOptions]()
	require.NoError(t, err)
	assert.Equal(t, "MyCustomSection", name)

	name, err = SectionNameFor[*testOptions]()
	require.NoError(t, err)
	assert.Equal(t, "testOptions", name)

	name, err = SectionNameFor[*derivedFromNamed]()
	require.NoError(t, err)
	assert.Equal(t, "derivedFromNamed", name)

	name, err = SectionNameFor[*DefaultOptions]()
	require.NoError(t, err)
	assert.Equal(t, DefaultSectionName, name)
}

func TestSectionNameFor_Invalid(t *testing.T) {
	_, err := SectionNameFor[*reservedOptions]()
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = SectionNameFor[*blankOptions]()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "github.com/moweilong/tokenservice/pkg/tokenclient.testOptions", TypeName[*testOptions]())
	assert.Equal(t, "github.com/moweilong/tokenservice/pkg/tokenclient.DefaultOptions", TypeName[*DefaultOptions]())
}
