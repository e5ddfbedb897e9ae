package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andrej220/secuaudit/internal/lg"
	"github.com/andrej220/secuaudit/pkg/audit"
	"github.com/andrej220/secuaudit/pkg/report"
)

func testReport() report.Report {
	results := []audit.Result{
		{RuleID: "1.1", Name: "cramfs", Status: audit.StatusPass},
		{RuleID: "1.2", Name: "root login", Status: audit.StatusFail, ActualOutput: "yes", ExpectedOutput: "no"},
	}
	return report.Report{
		RunID:       "run-42",
		Target:      "db01",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Summary:     report.Summarize(results),
		Results:     results,
	}
}

type fakeSink struct {
	mu        sync.Mutex
	published []report.Report
	err       error
	closeErr  error
	closed    bool
}

func (f *fakeSink) Publish(ctx context.Context, r report.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, r)
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return f.closeErr
}

func TestFanoutPublishesToAll(t *testing.T) {
	a, b := &fakeSink{}, &fakeSink{}
	require.NoError(t, Fanout{a, b}.Publish(context.Background(), testReport()))

	assert.Len(t, a.published, 1)
	assert.Len(t, b.published, 1)
	assert.Equal(t, "run-42", b.published[0].RunID)
}

func TestFanoutReturnsError(t *testing.T) {
	boom := errors.New("broker down")
	err := Fanout{&fakeSink{}, &fakeSink{err: boom}}.Publish(context.Background(), testReport())
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, Fanout(nil).Publish(context.Background(), testReport()))
}

func TestFanoutCloseJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("e1"), errors.New("e2")
	a, b, c := &fakeSink{closeErr: e1}, &fakeSink{}, &fakeSink{closeErr: e2}

	err := Fanout{a, b, c}.Close()
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestFileSink(t *testing.T) {
	rd, err := report.New(report.FormatJSON)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "reports", "audit.json")
	s := NewFile(path, rd, true)

	require.NoError(t, s.Publish(context.Background(), testReport()))
	require.NoError(t, s.Publish(context.Background(), testReport()), "overwrite enabled")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded report.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-42", decoded.RunID)
	assert.Len(t, decoded.Results, 2)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
	assert.NoError(t, s.Close())
}

func TestFileSinkEmptyPath(t *testing.T) {
	err := NewFile("", report.JSON{}, true).Publish(context.Background(), testReport())
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestFileSinkNoOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.json")
	s := NewFile(path, report.JSON{}, false)

	require.NoError(t, s.Publish(context.Background(), testReport()), "new file is created")
	err := s.Publish(context.Background(), testReport())
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestFileWriterNoOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	err := FileWriter{Overwrite: false}.Write(path, []byte("new"))
	assert.ErrorIs(t, err, os.ErrExist)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(data))
}

type fakeCollection struct {
	filter      any
	replacement any
	upsert      bool
	err         error
}

func (f *fakeCollection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	f.filter, f.replacement = filter, replacement
	for _, o := range opts {
		if o.Upsert != nil {
			f.upsert = *o.Upsert
		}
	}
	return &mongo.UpdateResult{UpsertedCount: 1}, f.err
}

func TestMongoSinkUpsertsByRunID(t *testing.T) {
	coll := &fakeCollection{}
	s := &MongoSink{collection: coll}

	require.NoError(t, s.Publish(context.Background(), testReport()))
	assert.Equal(t, bson.M{"_id": "run-42"}, coll.filter)
	assert.True(t, coll.upsert)
	assert.Equal(t, "db01", coll.replacement.(report.Report).Target)
	assert.NoError(t, s.Close())
}

func TestMongoSinkError(t *testing.T) {
	s := &MongoSink{collection: &fakeCollection{err: errors.New("not primary")}}
	err := s.Publish(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-42")
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkOneMessagePerResult(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{writer: w, topic: "audit-results"}

	require.NoError(t, s.Publish(context.Background(), testReport()))
	require.Len(t, w.msgs, 2)
	for _, m := range w.msgs {
		assert.Equal(t, "run-42", string(m.Key))
	}

	var msg ResultMessage
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &msg))
	assert.Equal(t, "db01", msg.Target)
	assert.Equal(t, "1.2", msg.Result.RuleID)
	assert.Equal(t, audit.StatusFail, msg.Result.Status)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestKafkaSinkEmptyReport(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{writer: w, topic: "t"}
	require.NoError(t, s.Publish(context.Background(), report.Report{RunID: "x"}))
	assert.Empty(t, w.msgs)
}

func TestKafkaSinkUnknownTopicIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := &KafkaSink{
		writer: &fakeWriter{err: kafka.UnknownTopicOrPartition},
		topic:  "audit-results",
	}
	ctx := lg.Attach(context.Background(), lg.NewZap(zap.New(core)))

	err := s.Publish(ctx, testReport())
	assert.ErrorIs(t, err, kafka.UnknownTopicOrPartition)
	require.Equal(t, 1, logs.FilterMessage("Kafka topic does not exist").Len())
	assert.Equal(t, "audit-results", logs.All()[0].ContextMap()["topic"])
}
