package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolapsis/vigil/internal/notify"
)

func TestHandleNotifications_NewestFirst(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		env.broker.Publish(notify.Announcement{ID: fmt.Sprintf("a%d", i)})
	}

	rec := env.do(t, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	require.Equal(t, true, resp["success"])
	require.Equal(t, float64(5), resp["count"])

	list := resp["notifications"].([]any)
	first := list[0].(map[string]any)
	assert.Equal(t, "a4", first["id"])
}

func TestHandleNotifications_CountParam(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		env.broker.Publish(notify.Announcement{ID: fmt.Sprintf("a%d", i)})
	}

	rec := env.do(t, http.MethodGet, "/api/notifications?count=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/notifications?count=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNotifications_EmptyBroker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, float64(0), resp["count"])
}

func TestHandleTestNotification_ReachesSubscribers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, ch := env.broker.Subscribe()

	rec := env.do(t, http.MethodPost, "/api/notifications/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	require.Equal(t, true, resp["success"])

	a := <-ch
	assert.Equal(t, resp["id"], a.ID)
	assert.Equal(t, []string{"Test"}, a.ObjectTypes)
	assert.Equal(t, 100.0, a.ConfidencePercent)
}
