package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// pushServer upgrades connections with the gabbo subprotocol and feeds
// frames to each client.
func pushServer(t *testing.T, frames <-chan []byte) *Client {
	t.Helper()
	upgrader := websocket.Upgrader{
		Subprotocols: []string{subprotocol},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewClientPort(u.Hostname(), port)
}

func TestConnectAndReceiveEvents(t *testing.T) {
	frames := make(chan []byte, 4)
	client := pushServer(t, frames)
	defer client.Disconnect()

	received := make(chan Event, 4)
	client.OnEvent(func(event Event) { received <- event })

	require.Equal(t, StateDisconnected, client.State())
	require.NoError(t, client.Connect(context.Background()))
	require.Equal(t, StateConnected, client.State())

	frames <- []byte(`<updates deviceID="MAC1"><volumeUpdated><volume><targetvolume>12</targetvolume><actualvolume>12</actualvolume><muteenabled>false</muteenabled></volume></volumeUpdated></updates>`)

	select {
	case event := <-received:
		require.Equal(t, EventVolume, event.Kind)
		require.Equal(t, "MAC1", event.DeviceID)
		require.Equal(t, 12, event.Volume.TargetVolume)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestEventsQueueDelivers(t *testing.T) {
	frames := make(chan []byte, 1)
	client := pushServer(t, frames)
	defer client.Disconnect()

	require.NoError(t, client.Connect(context.Background()))
	frames <- []byte(`<userActivityUpdate />`)

	select {
	case event := <-client.Events():
		require.Equal(t, EventUserActivity, event.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("queue never delivered")
	}
}

func TestConnectTwiceFails(t *testing.T) {
	frames := make(chan []byte)
	client := pushServer(t, frames)
	defer client.Disconnect()

	require.NoError(t, client.Connect(context.Background()))
	require.Error(t, client.Connect(context.Background()))
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	client := NewClientPort("127.0.0.1", 1) // nothing listens on port 1
	err := client.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, StateDisconnected, client.State())

	// A failed connect must not poison later attempts.
	err = client.Connect(context.Background())
	require.Error(t, err)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	frames := make(chan []byte)
	client := pushServer(t, frames)

	require.NoError(t, client.Connect(context.Background()))
	client.Disconnect()
	client.Disconnect()
	require.Equal(t, StateDisconnected, client.State())
}

func TestServerCloseTriggersDisconnect(t *testing.T) {
	frames := make(chan []byte)
	client := pushServer(t, frames)

	require.NoError(t, client.Connect(context.Background()))
	close(frames) // server handler returns, closing the socket

	require.Eventually(t, func() bool {
		return client.State() == StateDisconnected
	}, 2*time.Second, 20*time.Millisecond)
}
