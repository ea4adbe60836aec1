package coursekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CourseRun(t *testing.T) {
	k, err := Parse("course-v1:HarvardX+CS50+2024")
	require.NoError(t, err)

	assert.Equal(t, "course-v1:HarvardX+CS50+2024", k.String())
	assert.Equal(t, "HarvardX", k.Org())
	assert.True(t, k.IsCourse())
	assert.False(t, k.IsZero())
}

func TestParse_LegacyCourseRun(t *testing.T) {
	k, err := Parse("MITx/6.002x/2012_Spring")
	require.NoError(t, err)

	assert.Equal(t, "MITx", k.Org())
	assert.True(t, k.IsCourse())
}

func TestParse_Library(t *testing.T) {
	k, err := Parse("library-v1:edX+problem-bank")
	require.NoError(t, err)

	assert.Equal(t, "edX", k.Org())
	assert.False(t, k.IsCourse())
	assert.Equal(t, KindLibrary, k.Kind())
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-a-key",
		"course-v1:",
		"course-v1:Org+Course",
		"course-v1:Org+Course+Run+Extra",
		"course-v1:+Course+Run",
		"library-v1:Org",
		"Org/Course",
		"Org/Course/Run/Extra",
	}
	for _, raw := range cases {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidKey, "input %q", raw)
	}
}

func TestParseUsage(t *testing.T) {
	u, err := ParseUsage("block-v1:X+C+R+type@problem+block@intro")
	require.NoError(t, err)

	assert.Equal(t, "course-v1:X+C+R", u.CourseKey().String())
	assert.Equal(t, "X", u.CourseKey().Org())
}

func TestParseUsage_Invalid(t *testing.T) {
	for _, raw := range []string{
		"course-v1:X+C+R",
		"block-v1:X+C+R",
		"block-v1:X+C+R+type@problem",
	} {
		_, err := ParseUsage(raw)
		assert.ErrorIs(t, err, ErrInvalidUsageKey, "input %q", raw)
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
}
