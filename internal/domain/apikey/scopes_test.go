package apikey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScopes(t *testing.T) {
	scopes, unknown := ParseScopes("READ_BRANDS, write_brands,READ_BRANDS,BOGUS_SCOPE, ,FULL_ACCESS")

	assert.Equal(t, ScopeSet{ScopeReadBrands, ScopeWriteBrands, ScopeFullAccess}, scopes)
	assert.Equal(t, []string{"BOGUS_SCOPE"}, unknown)
}

func TestParseScopesEmpty(t *testing.T) {
	scopes, unknown := ParseScopes("")
	assert.Empty(t, scopes)
	assert.Empty(t, unknown)
}

func TestSatisfiesAnySemantics(t *testing.T) {
	granted := ScopeSet{ScopeReadBrands, ScopeReadUsers}

	assert.True(t, granted.Satisfies([]Scope{ScopeReadBrands, ScopeWriteBrands}, false))
	assert.False(t, granted.Satisfies([]Scope{ScopeWriteBrands}, false))
}

func TestSatisfiesAllSemantics(t *testing.T) {
	granted := ScopeSet{ScopeReadBrands, ScopeWriteBrands}

	assert.True(t, granted.Satisfies([]Scope{ScopeReadBrands, ScopeWriteBrands}, true))
	assert.False(t, granted.Satisfies([]Scope{ScopeReadBrands, ScopeReadUsers}, true))
}

func TestFullAccessAlwaysSatisfies(t *testing.T) {
	granted := ScopeSet{ScopeFullAccess}

	assert.True(t, granted.Satisfies([]Scope{ScopeAdminAccess}, false))
	assert.True(t, granted.Satisfies([]Scope{ScopeReadUsers, ScopeWriteUsers, ScopeAdminAccess}, true))
}

func TestEmptyRequiredAlwaysPasses(t *testing.T) {
	assert.True(t, ScopeSet{}.Satisfies(nil, false))
	assert.True(t, ScopeSet{}.Satisfies(nil, true))
}

func TestEmptyGrantedFailsNonEmptyRequired(t *testing.T) {
	assert.False(t, ScopeSet{}.Satisfies([]Scope{ScopeReadBrands}, false))
}

func TestMissing(t *testing.T) {
	granted := ScopeSet{ScopeReadBrands}
	missing := granted.Missing([]Scope{ScopeReadBrands, ScopeWriteBrands})
	assert.Equal(t, []Scope{ScopeWriteBrands}, missing)
}
