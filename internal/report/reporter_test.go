package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/config"
	"github.com/fachebot/wecom-sync-bot/internal/message"
	"github.com/fachebot/wecom-sync-bot/internal/shape"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportMessages(t *testing.T) {
	var got MessageList
	var header http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	r := NewReporter(&config.Report{URL: server.URL, Token: "secret"}, nil)
	room := message.RoomSignature{Kind: message.RoomExternalGroup, Titles: []string{"Ops", "3"}}
	records := []message.Record{{
		SenderSide:   message.SenderOther,
		ContentType:  shape.PlainText,
		Fragments:    []message.Fragment{{Role: message.RoleBody, Text: "在吗"}},
		SpeakerNames: []string{"张三"},
	}}

	require.NoError(t, r.ReportMessages(context.Background(), room, records))
	assert.Equal(t, TypeReceiveMessageList, got.Type)
	assert.Equal(t, message.RoomExternalGroup, got.RoomKind)
	assert.Equal(t, []string{"Ops", "3"}, got.Titles)
	require.Len(t, got.Messages, 1)
	assert.True(t, records[0].Equal(got.Messages[0]))

	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
	assert.Equal(t, r.SessionID(), header.Get("X-Session-Id"))
	_, err := ulid.Parse(header.Get("X-Batch-Id"))
	assert.NoError(t, err)
}

func TestReportMessages_WireFormat(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer server.Close()

	r := NewReporter(&config.Report{URL: server.URL}, nil)
	records := []message.Record{{SenderSide: message.SenderSelf, ContentType: shape.Image, ImageSize: 3, Image: []byte{1, 2, 3}}}
	require.NoError(t, r.ReportMessages(context.Background(), message.RoomSignature{Kind: message.RoomInternalContact, Titles: []string{"张三"}}, records))

	assert.Equal(t, "RECEIVE_MESSAGE_LIST", raw["type"])
	assert.Equal(t, "InternalContact", raw["roomKind"])
	msg := raw["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "Self", msg["senderSide"])
	assert.Equal(t, "Image", msg["contentType"])
	assert.Equal(t, float64(3), msg["imageByteLength"])
	assert.Equal(t, "AQID", msg["imageBytes"])
}

func TestReport_Retry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewReporter(&config.Report{URL: server.URL, RetryTimes: 3}, nil)
	r.retryInterval = time.Millisecond
	err := r.ReportFriends(context.Background(), []Friend{{Name: "王五"}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReport_GiveUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := NewReporter(&config.Report{URL: server.URL, RetryTimes: 2}, nil)
	r.retryInterval = time.Millisecond
	err := r.ReportFriends(context.Background(), []Friend{{Name: "王五"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), calls.Load())
}

func TestReport_EmptyBatch(t *testing.T) {
	r := NewReporter(&config.Report{URL: "http://127.0.0.1:1"}, nil)
	assert.NoError(t, r.ReportMessages(context.Background(), message.RoomSignature{}, nil))
	assert.NoError(t, r.ReportFriends(context.Background(), nil))
}

func TestNewProxyTransport(t *testing.T) {
	transport, err := NewProxyTransport(config.Sock5Proxy{})
	require.NoError(t, err)
	assert.Nil(t, transport)

	transport, err = NewProxyTransport(config.Sock5Proxy{Enable: true, Host: "127.0.0.1", Port: 1080})
	require.NoError(t, err)
	assert.NotNil(t, transport)
}
