package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.HasRole(Admin, "ops"))

	assert.True(t, r.Grant(Admin, "ops"))
	assert.False(t, r.Grant(Admin, "ops"))
	assert.False(t, r.Grant(Admin, " "))
	assert.True(t, r.HasRole(Admin, " ops "))
	assert.False(t, r.HasRole(Updater, "ops"))

	r.Grant(Updater, "bot-b")
	r.Grant(Updater, "bot-a")
	assert.Equal(t, []string{"bot-a", "bot-b"}, r.Members(Updater))

	assert.True(t, r.Revoke(Updater, "bot-a"))
	assert.False(t, r.Revoke(Updater, "bot-a"))
	assert.Equal(t, []string{"bot-b"}, r.Members(Updater))

	var nilRegistry *Registry
	assert.False(t, nilRegistry.HasRole(Admin, "ops"))
}
