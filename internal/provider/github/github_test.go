package github

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	gogithub "github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testSecret = "sssh"

func signedPushRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/listener/github", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-GitHub-Delivery", "1337")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))

	return req
}

const pushEventJSON = `{
  "ref": "refs/heads/main",
  "after": "4d5ab93cb4d19d5a1858a23c07a2b9da2c461334",
  "repository": {
    "name": "cascader",
    "owner": {"name": "simplesurance", "login": "simplesurance"}
  }
}`

func TestHTTPHandlerForwardsPushEvent(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *Event, 1)
	p := New([]chan<- *Event{ch}, WithPayloadSecret(testSecret))

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, signedPushRequest(t, testSecret, pushEventJSON))

	require.Equal(t, http.StatusOK, resp.Code)

	select {
	case ev := <-ch:
		assert.Equal(t, "push", ev.Type)
		assert.Equal(t, "1337", ev.DeliveryID)

		pushEv, ok := ev.Event.(*gogithub.PushEvent)
		require.True(t, ok, "event has type %T, expected *github.PushEvent", ev.Event)
		assert.Equal(t, "refs/heads/main", pushEv.GetRef())

	default:
		t.Fatal("no event was forwarded to the channel")
	}
}

func TestHTTPHandlerRejectsInvalidSignature(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *Event, 1)
	p := New([]chan<- *Event{ch}, WithPayloadSecret(testSecret))

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, signedPushRequest(t, "wrong secret", pushEventJSON))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, ch)
}

func TestHTTPHandlerRespondsServiceUnavailableWhenChannelFull(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *Event)
	p := New([]chan<- *Event{ch}, WithPayloadSecret(testSecret))

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, signedPushRequest(t, testSecret, pushEventJSON))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
