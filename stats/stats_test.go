package stats

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndJSON(t *testing.T) {
	s := NewStats()

	s.GroupRequest()
	s.PrivateRequest()
	s.PrivateRequest()
	s.MatchedMessage()
	s.ImageSent()
	s.ImageFailure()
	s.RefreshFinished(3, nil)
	s.RefreshFinished(0, errors.New("search down"))

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.GroupRequests)
	assert.Equal(t, uint64(2), snap.PrivateRequests)
	assert.Equal(t, uint64(2), snap.RefreshRuns)
	assert.Equal(t, uint64(1), snap.RefreshFailures)
	assert.Equal(t, uint64(3), snap.ImagesAdded)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s.String()), &decoded))
	assert.EqualValues(t, 1, decoded["images_sent"])
	assert.EqualValues(t, 1, decoded["image_failures"])
	assert.Contains(t, decoded, "uptime")
}
