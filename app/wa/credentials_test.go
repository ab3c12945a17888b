package wa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentialStoreRoundTrip(t *testing.T) {
	store := NewFileCredentialStore(t.TempDir())

	blob, err := store.Load("7", "device-a")
	require.NoError(t, err)
	assert.Nil(t, blob, "missing credentials should load as nil")
	assert.False(t, store.Exists("7", "device-a"))

	require.NoError(t, store.Save("7", "device-a", []byte(`{"noise":"key"}`)))
	assert.True(t, store.Exists("7", "device-a"))

	blob, err = store.Load("7", "device-a")
	require.NoError(t, err)
	assert.Equal(t, `{"noise":"key"}`, string(blob))

	require.NoError(t, store.Delete("7", "device-a"))
	assert.False(t, store.Exists("7", "device-a"))
}

func TestFileCredentialStorePurge(t *testing.T) {
	store := NewFileCredentialStore(t.TempDir())
	require.NoError(t, store.Save("7", "keep-me", []byte("a")))
	require.NoError(t, store.Save("7", "drop-me", []byte("b")))
	require.NoError(t, store.Save("7", "drop-too", []byte("c")))

	removed, err := store.Purge("7", map[string]bool{"keep-me": true})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, store.Exists("7", "keep-me"))
	assert.False(t, store.Exists("7", "drop-me"))
}

func TestDisconnectReasonRecoverable(t *testing.T) {
	assert.False(t, ReasonLoggedOut.Recoverable())

	for _, reason := range []DisconnectReason{
		ReasonTimedOut,
		ReasonConnectionClosed,
		ReasonRestartRequired,
		ReasonServiceUnavailable,
		ReasonBadSession,
	} {
		assert.True(t, reason.Recoverable(), "reason %d", reason)
	}
}

func TestJID(t *testing.T) {
	assert.Equal(t, "628123@s.whatsapp.net", JID("628123"))
	assert.Equal(t, "628123@s.whatsapp.net", JID("628123@s.whatsapp.net"))
}
