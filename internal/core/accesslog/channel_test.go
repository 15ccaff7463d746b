//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"testing"

	"github.com/manetu/authzengine/pkg/core/accesslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelInstantiate(t *testing.T) {
	ch := make(chan *accesslog.Record, 10)
	factory := NewChannelLogger(ch)
	stream, err := factory.NewStream()
	require.NoError(t, err)
	assert.NotNil(t, stream)
}

func TestChannelLoggerSend(t *testing.T) {
	ch := make(chan *accesslog.Record, 10)
	logger := &ChannelStream{ch: ch}

	record := &accesslog.Record{
		Principal: accesslog.Principal{UserID: "demo"},
		Decision:  accesslog.Grant,
	}

	err := logger.Send(record)
	assert.NoError(t, err)
	record.Decision = accesslog.Deny

	select {
	case received := <-ch:
		assert.Equal(t, "demo", received.Principal.UserID)
		assert.Equal(t, accesslog.Grant, received.Decision)
	default:
		t.Fatal("Expected record to be sent to channel")
	}
}

func TestChannelLoggerClose(t *testing.T) {
	ch := make(chan *accesslog.Record, 10)
	logger := &ChannelStream{ch: ch}

	logger.Close()

	_, ok := <-ch
	assert.False(t, ok, "Channel should be closed")
}

func TestChannelLoggerCloseWithNilChannel(t *testing.T) {
	logger := &ChannelStream{ch: nil}

	assert.NotPanics(t, func() {
		logger.Close()
	})
}
