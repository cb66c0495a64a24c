package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	spec := "hostname=unique,rack=like:us-.*,rack=unlike:us-west.*,az=cluster:a,dc=cluster,shelf=groupBy:2"
	parsed, err := Parse(spec)
	require.NoError(t, err)

	assert.Equal(t, "unique", parsed["hostname"][0].String())
	assert.Equal(t, "like:us-.*", parsed["rack"][0].String())
	assert.Equal(t, "unlike:us-west.*", parsed["rack"][1].String())
	assert.Equal(t, "cluster:a", parsed["az"][0].String())
	assert.Equal(t, "cluster", parsed["dc"][0].String())
	assert.Equal(t, "groupBy:2", parsed["shelf"][0].String())
}

func TestParseEmpty(t *testing.T) {
	parsed, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("bogus")
	require.Error(t, err)

	_, err = Parse("attr=like:(")
	require.Error(t, err)
}

func TestUnique(t *testing.T) {
	c := Constraint{Kind: KindUnique}
	assert.True(t, c.Matches("h1", []string{"h2", "h3"}))
	assert.False(t, c.Matches("h1", []string{"h1", "h2"}))
}

func TestClusterNoValuePinsToFirst(t *testing.T) {
	c := Constraint{Kind: KindCluster}
	assert.True(t, c.Matches("a", nil))
	assert.True(t, c.Matches("a", []string{"a"}))
	assert.False(t, c.Matches("b", []string{"a"}))
}

func TestClusterWithValueIgnoresHistory(t *testing.T) {
	// Documented behavior: an explicit cluster:<value> never consults
	// peer history, it pins by literal equality only.
	c := Constraint{Kind: KindCluster, Value: "prod", HasValue: true}
	assert.True(t, c.Matches("prod", []string{"staging"}))
	assert.False(t, c.Matches("staging", nil))
}

func TestLikeUnlike(t *testing.T) {
	like, err := parseExpr("like:us-.*")
	require.NoError(t, err)
	assert.True(t, like.Matches("us-east", nil))
	assert.False(t, like.Matches("eu-west", nil))

	unlike, err := parseExpr("unlike:us-.*")
	require.NoError(t, err)
	assert.False(t, unlike.Matches("us-east", nil))
	assert.True(t, unlike.Matches("eu-west", nil))
}

func TestGroupByBootstrap(t *testing.T) {
	c := Constraint{Kind: KindGroupBy, N: 1}
	// no groups yet: anything is accepted.
	assert.True(t, c.Matches("A", nil))
}

func TestGroupByBalanceAcrossEqualGroups(t *testing.T) {
	// n groups of size k each: any of the existing group values is
	// accepted (tied at the minimum count).
	c := Constraint{Kind: KindGroupBy, N: 2}
	history := []string{"A", "B"}
	assert.True(t, c.Matches("A", history))
	assert.True(t, c.Matches("B", history))
}

func TestGroupByRejectsOverloadedGroup(t *testing.T) {
	c := Constraint{Kind: KindGroupBy, N: 2}
	history := []string{"A", "A", "B"}
	// A already has 2, B has 1: A would push its group past B before B
	// catches up, so it's rejected; B is accepted.
	assert.False(t, c.Matches("A", history))
	assert.True(t, c.Matches("B", history))
}

func TestGroupByFewerThanNGroupsAcceptsNewGroup(t *testing.T) {
	c := Constraint{Kind: KindGroupBy, N: 3}
	history := []string{"A"}
	// only 1 distinct group so far, fewer than n=3: a brand new group
	// value is welcomed to help fill out the target group count.
	assert.True(t, c.Matches("C", history))
}
