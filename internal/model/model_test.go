package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampWeight(t *testing.T) {
	assert.Equal(t, MinWeight, ClampWeight(-3))
	assert.Equal(t, MinWeight, ClampWeight(0.2))
	assert.Equal(t, 4.2, ClampWeight(4.2))
	assert.Equal(t, MaxWeight, ClampWeight(11))
}

func TestValidVerificationStatus(t *testing.T) {
	for _, s := range []VerificationStatus{
		VerificationUnverified, VerificationPlausible, VerificationVerified,
		VerificationDisputed, VerificationFlagged,
	} {
		assert.True(t, ValidVerificationStatus(s), string(s))
	}
	assert.False(t, ValidVerificationStatus("MAYBE"))
	assert.False(t, ValidVerificationStatus(""))
}

func TestEnriched(t *testing.T) {
	var c StoryCandidate
	assert.False(t, c.Enriched())

	c.SuggestedAngles = []string{}
	assert.True(t, c.Enriched(), "an empty non-nil slice still counts as processed")
}
