package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap/zaptest"
)

type fakeCollection struct {
	mu   sync.Mutex
	docs []auditDocument
	err  error
}

func (f *fakeCollection) InsertOne(_ context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, document.(auditDocument))
	return &mongo.InsertOneResult{}, nil
}

func TestMongoSink_WritesAuditDocuments(t *testing.T) {
	coll := &fakeCollection{}
	sink := NewMongoSink(coll, 8, zaptest.NewLogger(t))

	sink.Emit(context.Background(), Event{SessionID: "S2", Seq: 5, Kind: KindApprovalRequired, Node: "SUSPENDED_APPROVAL",
		Payload: map[string]any{"approval_id": "apr_1"}})
	sink.Emit(context.Background(), Event{SessionID: "S2", Seq: 6, Kind: KindApprovalResolved})
	require.NoError(t, sink.Close())

	coll.mu.Lock()
	defer coll.mu.Unlock()
	require.Len(t, coll.docs, 2)
	assert.Equal(t, "approval_required", coll.docs[0].Kind)
	assert.Equal(t, "apr_1", coll.docs[0].Payload["approval_id"])
	assert.Nil(t, coll.docs[1].Payload)
}

func TestMongoSink_InsertErrorsAreSwallowed(t *testing.T) {
	coll := &fakeCollection{err: errors.New("connection refused")}
	sink := NewMongoSink(coll, 2, zaptest.NewLogger(t))
	sink.Emit(context.Background(), Event{SessionID: "S1", Kind: KindAnswered})
	assert.NoError(t, sink.Close())

	// 关闭后发送被忽略
	sink.Emit(context.Background(), Event{SessionID: "S1", Kind: KindAnswered})
}
