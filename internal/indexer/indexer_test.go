//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIndexer struct {
	mu          sync.Mutex
	indexed     []string
	invalidated []string
	fail        bool
	panicOn     string
}

func (r *recordingIndexer) Index(_ context.Context, embedder, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, embedder+":"+filepath.Base(path))
	if r.panicOn != "" && filepath.Base(path) == r.panicOn {
		panic("unexpected keyword \"xref\" parsing object")
	}
	if r.fail {
		return errors.New("embedding backend down")
	}
	return nil
}

func (r *recordingIndexer) Invalidate(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, filepath.Base(path))
	return nil
}

func (r *recordingIndexer) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexed...), append([]string(nil), r.invalidated...)
}

func TestConsumer_IndexesPublishedFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := NewPubSub(nil)
	defer func() { _ = pubsub.Close() }()

	idx := &recordingIndexer{}
	consumer := NewConsumer(pubsub, idx, nil)
	require.NoError(t, consumer.Start(ctx))

	publisher := NewPublisher(pubsub, []string{"ollama", "openai"})
	require.NoError(t, publisher.Publish(ctx, "uploaded_files/a.txt"))

	assert.Eventually(t, func() bool {
		indexed, _ := idx.snapshot()
		return len(indexed) == 2
	}, 2*time.Second, 10*time.Millisecond)

	indexed, _ := idx.snapshot()
	assert.Equal(t, []string{"ollama:a.txt", "openai:a.txt"}, indexed)
}

func TestConsumer_FailuresAreAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := NewPubSub(nil)
	defer func() { _ = pubsub.Close() }()

	idx := &recordingIndexer{fail: true}
	require.NoError(t, NewConsumer(pubsub, idx, nil).Start(ctx))

	publisher := NewPublisher(pubsub, []string{"ollama"})
	require.NoError(t, pubsub.Publish(TopicUploaded, message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	require.NoError(t, publisher.Publish(ctx, "one.txt"))
	require.NoError(t, publisher.Publish(ctx, "two.txt"))

	// The consumer moves past both the bad payload and the failed index.
	assert.Eventually(t, func() bool {
		indexed, _ := idx.snapshot()
		return len(indexed) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumer_SurvivesPanickingIndex(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := NewPubSub(nil)
	defer func() { _ = pubsub.Close() }()

	idx := &recordingIndexer{panicOn: "bad.pdf"}
	consumer := NewConsumer(pubsub, idx, nil)
	require.NoError(t, consumer.Start(ctx))

	publisher := NewPublisher(pubsub, []string{"ollama", "openai"})
	require.NoError(t, publisher.Publish(ctx, "uploaded_files/bad.pdf"))
	require.NoError(t, publisher.Publish(ctx, "uploaded_files/good.txt"))

	assert.Eventually(t, func() bool {
		indexed, _ := idx.snapshot()
		return len(indexed) == 4
	}, 2*time.Second, 10*time.Millisecond)

	indexed, _ := idx.snapshot()
	assert.ElementsMatch(t, []string{"ollama:bad.pdf", "openai:bad.pdf", "ollama:good.txt", "openai:good.txt"}, indexed)
	select {
	case <-consumer.Done():
		t.Fatal("consumer stopped after a panic")
	default:
	}
}

func TestPublisher_NoEmbedders(t *testing.T) {
	pubsub := NewPubSub(nil)
	defer func() { _ = pubsub.Close() }()

	messages, err := pubsub.Subscribe(context.Background(), TopicUploaded)
	require.NoError(t, err)

	require.NoError(t, NewPublisher(pubsub, nil).Publish(context.Background(), "a.txt"))
	select {
	case msg := <-messages:
		t.Fatalf("unexpected message %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	pubsub := NewPubSub(nil)
	defer func() { _ = pubsub.Close() }()
	messages, err := pubsub.Subscribe(ctx, TopicUploaded)
	require.NoError(t, err)

	idx := &recordingIndexer{}
	w, err := NewWatcher(dir, idx, NewPublisher(pubsub, []string{"ollama"}), nil)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.Debounce = 20 * time.Millisecond
	go w.Run(ctx)

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.docx"), []byte("x"), 0o644))

	select {
	case msg := <-messages:
		var event Event
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, path, event.Path)
		assert.Equal(t, []string{"ollama"}, event.Embedders)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no index event for a new file")
	}

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, invalidated := idx.snapshot()
		return len(invalidated) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	_, invalidated := idx.snapshot()
	for _, name := range invalidated {
		assert.Equal(t, "notes.txt", name)
	}
}
