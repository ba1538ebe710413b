package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDumpPlaylist(t *testing.T) {
	dump := []byte(`{
		"id": "PL123",
		"title": "Some Playlist",
		"entries": [
			{"id": "abc", "url": "https://www.youtube.com/watch?v=abc", "duration": 125.0},
			{"id": "def", "webpage_url": "https://www.youtube.com/watch?v=def", "duration": 300},
			{"id": "ghi"},
			{"title": "deleted video"}
		]
	}`)

	videos, err := ParseDump(dump)
	require.NoError(t, err)
	require.Len(t, videos, 3)

	assert.Equal(t, "https://www.youtube.com/watch?v=abc", videos[0].URL)
	assert.Equal(t, int64(125), videos[0].Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=def", videos[1].URL)
	// An entry with only an ID still resolves to a watch URL.
	assert.Equal(t, "https://www.youtube.com/watch?v=ghi", videos[2].URL)
	assert.Zero(t, videos[2].Duration)
}

func TestParseDumpSingleVideo(t *testing.T) {
	dump := []byte(`{
		"id": "xyz",
		"webpage_url": "https://www.youtube.com/watch?v=xyz",
		"duration": 4521.3
	}`)

	videos, err := ParseDump(dump)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=xyz", videos[0].URL)
	assert.Equal(t, int64(4521), videos[0].Duration)
}

func TestParseDumpRejectsGarbage(t *testing.T) {
	_, err := ParseDump([]byte("ERROR: not json"))
	assert.Error(t, err)

	_, err = ParseDump([]byte(`{"title": "no urls anywhere"}`))
	assert.Error(t, err)
}

func TestParseDumpEmptyPlaylist(t *testing.T) {
	videos, err := ParseDump([]byte(`{"id": "PL1", "entries": []}`))
	require.NoError(t, err)
	assert.Empty(t, videos)
}
