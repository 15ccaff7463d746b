//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Record {
	return &Record{
		Metadata:  Metadata{ID: "r1", Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		Principal: Principal{UserID: "demo", GroupIDs: []string{"sales"}},
		Checks: []Check{
			{Permission: "READ", Resource: "Task", ResourceID: "t1", Decision: Grant, Scope: "group"},
		},
		Decision: Grant,
		Duration: 1200,
	}
}

func TestIoWriterFactory(t *testing.T) {
	log := NewStdoutFactory()
	assert.IsType(t, &IoWriterFactory{}, log)

	stream, err := NewIoWriterFactory(&bytes.Buffer{}).NewStream()
	require.NoError(t, err)
	assert.IsType(t, &IoWriterStream{}, stream)
}

func TestIoWriterStream_Send(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newStream(buf, AccessLogOptions{})

	require.NoError(t, log.Send(sample()))

	output := buf.String()
	assert.Contains(t, output, `"userId":"demo"`)
	assert.Contains(t, output, `"decision":"GRANT"`)
	assert.Contains(t, output, `"scope":"group"`)
	assert.True(t, strings.HasSuffix(output, "\n"))
	assert.False(t, strings.Contains(strings.TrimSuffix(output, "\n"), "\n"), "compact output should be single line")

	var decoded Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *sample(), decoded)
}

func TestIoWriterStream_EmptyRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newStream(buf, AccessLogOptions{})

	require.NoError(t, log.Send(&Record{Decision: Deny, Reason: ReasonNoMatch}))

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	_, exists := data["checks"]
	assert.False(t, exists, "empty checks should be omitted")
	assert.Equal(t, ReasonNoMatch, data["reason"])
}

func TestIoWriterStream_MultipleWrites(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newStream(buf, AccessLogOptions{})

	for _, user := range []string{"user1", "user2", "user3"} {
		r := sample()
		r.Principal.UserID = user
		require.NoError(t, log.Send(r))
	}

	output := buf.String()
	assert.Contains(t, output, "user1")
	assert.Contains(t, output, "user3")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestIoWriterStream_PrettyPrint(t *testing.T) {
	buf := &bytes.Buffer{}
	factory := NewIoWriterFactoryWithOptions(buf, AccessLogOptions{PrettyPrint: true})
	assert.True(t, factory.(*IoWriterFactory).options.PrettyPrint)

	stream, err := factory.NewStream()
	require.NoError(t, err)
	require.NoError(t, stream.Send(sample()))

	assert.Contains(t, buf.String(), "\n  ")
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "GRANT", data["decision"])
}

func TestIoWriterStream_Close(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newStream(buf, AccessLogOptions{})

	assert.NotPanics(t, func() {
		log.Close()
	})
	assert.NoError(t, log.Send(sample()))
}

func TestNullStream(t *testing.T) {
	factory := NewNullFactory()
	assert.IsType(t, &NullFactory{}, factory)

	stream, err := factory.NewStream()
	require.NoError(t, err)
	assert.IsType(t, &NullStream{}, stream)

	for i := 0; i < 100; i++ {
		assert.NoError(t, stream.Send(sample()))
	}
	assert.NoError(t, stream.Send(nil))

	assert.NotPanics(t, func() {
		stream.Close()
		stream.Close()
	})
}
