package events

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Collection is the subset of *mongo.Collection used by MongoSink.
type Collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

type auditDocument struct {
	SessionID string    `bson:"session_id"`
	Seq       int64     `bson:"seq"`
	Kind      string    `bson:"kind"`
	Node      string    `bson:"node,omitempty"`
	Payload   bson.M    `bson:"payload,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

// MongoSink persists the event stream as an audit log. Events are queued and
// written by a background worker; a full queue drops the event.
type MongoSink struct {
	coll    Collection
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// ConnectMongo opens a client for uri and returns the audit collection.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*mongo.Client, *mongo.Collection, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, client.Database(database).Collection(collection), nil
}

func NewMongoSink(coll Collection, buffer int, logger *zap.Logger) *MongoSink {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MongoSink{
		coll:    coll,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		logger:  logger.With(zap.String("sink", "mongo_audit")),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *MongoSink) Emit(_ context.Context, ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("audit queue full, dropping event",
			zap.String("session_id", ev.SessionID),
			zap.String("kind", string(ev.Kind)))
	}
}

func (s *MongoSink) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		case <-s.done:
			// 关闭前写完队列中剩余事件
			for {
				select {
				case ev := <-s.queue:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *MongoSink) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	doc := auditDocument{
		SessionID: ev.SessionID,
		Seq:       ev.Seq,
		Kind:      string(ev.Kind),
		Node:      ev.Node,
		Timestamp: ev.Timestamp,
	}
	if len(ev.Payload) > 0 {
		doc.Payload = bson.M(ev.Payload)
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		s.logger.Warn("audit insert failed",
			zap.String("session_id", ev.SessionID),
			zap.Int64("seq", ev.Seq),
			zap.Error(err))
	}
}

// Close drains the queue and stops the worker.
func (s *MongoSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}
