package skills

import (
	"path/filepath"
	"testing"

	"github.com/BaSui01/skillbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistry_LoadDir(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))

	n, err := r.LoadDir("testdata")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, r.Len())

	cal, ok := r.Get("calendar")
	require.True(t, ok)
	assert.Equal(t, "Calendar Skill", cal.DisplayName())
	require.Len(t, cal.Actions, 2)
	assert.Equal(t, []string{"string"}, cal.Actions[0].Definition.Slots[0].Types)
	assert.Equal(t, []string{"string"}, cal.Actions[0].Definition.Slots[1].Types)

	weather, ok := r.Get("weather")
	require.True(t, ok)
	assert.Equal(t, []string{"string"}, weather.Actions[0].Definition.Slots[0].Types)

	ids := []string{}
	for _, m := range r.List() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"calendar", "weather"}, ids)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.LoadFile(filepath.Join("testdata", "calendar.yaml"))
	require.NoError(t, err)

	_, err = r.LoadFile(filepath.Join("testdata", "calendar.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfiguration))
}

func TestRegistry_RejectsInvalidManifest(t *testing.T) {
	r := NewRegistry(nil)

	err := r.Register(&Manifest{ID: "broken"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfiguration))

	err = r.Register(nil)
	require.Error(t, err)
}

func TestReadManifest_MissingFile(t *testing.T) {
	_, err := ReadManifest(filepath.Join("testdata", "nope.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfiguration))
}

func TestRegistry_UpsertAndRemove(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	m := &Manifest{ID: "calendar", Endpoint: "https://calendar.example.com/api/messages", MSAAppID: "cal"}

	replaced, err := r.Upsert(m)
	require.NoError(t, err)
	assert.False(t, replaced)

	updated := *m
	updated.Endpoint = "https://calendar-v2.example.com/api/messages"
	replaced, err = r.Upsert(&updated)
	require.NoError(t, err)
	assert.True(t, replaced)
	got, _ := r.Get("calendar")
	assert.Equal(t, updated.Endpoint, got.Endpoint)

	_, err = r.Upsert(&Manifest{ID: "broken"})
	require.Error(t, err)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove("calendar"))
	assert.False(t, r.Remove("calendar"))
	assert.Zero(t, r.Len())
}
