package idtag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueEmptyPoolErrors(t *testing.T) {
	c := New(nil, PolicyRandom, 1)
	_, err := c.Issue(1)
	assert.Error(t, err)
}

func TestRoundRobinCyclesInOrder(t *testing.T) {
	c := New([]string{"A", "B", "C"}, PolicyRoundRobin, 1)

	var got []string
	for i := 0; i < 5; i++ {
		tag, err := c.Issue(1)
		require.NoError(t, err)
		got = append(got, tag)
	}
	assert.Equal(t, []string{"A", "B", "C", "A", "B"}, got)
}

func TestConnectorAffinityCyclesIndependentlyPerConnector(t *testing.T) {
	c := New([]string{"A", "B"}, PolicyConnectorAffinity, 1)

	tag1a, _ := c.Issue(1)
	tag2a, _ := c.Issue(2)
	tag1b, _ := c.Issue(1)

	assert.Equal(t, "A", tag1a)
	assert.Equal(t, "A", tag2a)
	assert.Equal(t, "B", tag1b)
}

func TestRandomPolicyAlwaysReturnsPoolMember(t *testing.T) {
	pool := []string{"A", "B", "C"}
	c := New(pool, PolicyRandom, 42)

	for i := 0; i < 20; i++ {
		tag, err := c.Issue(1)
		require.NoError(t, err)
		assert.Contains(t, pool, tag)
	}
}
