package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesFollowConnectionLifetime(t *testing.T) {
	r := New()
	now := time.Now()

	r.Add("a", now)
	require.True(t, r.Live("a"))
	assert.Equal(t, 1, r.Len())

	r.SetProfile("a", "Ana", "series")
	r.SetReferenceImage("a", "img")

	attrs, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Ana", attrs.DisplayName)
	assert.Equal(t, "series", attrs.Mode)
	assert.Equal(t, now, attrs.ConnectedAt)

	assert.Equal(t, "img", r.TakeReferenceImage("a"))
	assert.Equal(t, "", r.TakeReferenceImage("a"))

	r.Remove("a")
	assert.False(t, r.Live("a"))
	_, ok = r.Get("a")
	assert.False(t, ok)

	// setters on unknown connections are ignored
	r.SetProfile("ghost", "x", "single")
	assert.Equal(t, 0, r.Len())
}

func TestBindingSurvivesDisconnect(t *testing.T) {
	r := New()
	r.Add("a", time.Now())
	r.Bind("a", "room-1")

	r.Remove("a")
	roomID, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, "room-1", roomID)
}

func TestRebind(t *testing.T) {
	r := New()
	r.Bind("old", "room-1")

	require.True(t, r.Rebind("old", "new"))
	_, ok := r.RoomOf("old")
	assert.False(t, ok)
	roomID, ok := r.RoomOf("new")
	require.True(t, ok)
	assert.Equal(t, "room-1", roomID)
	assert.Equal(t, 1, r.Bound())

	assert.False(t, r.Rebind("old", "other"), "a stale handle cannot be moved twice")
	r.Unbind("new")
	assert.Equal(t, 0, r.Bound())
}
