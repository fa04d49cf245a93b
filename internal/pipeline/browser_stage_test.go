package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/pipeline"
	"github.com/cartx/imagesync/internal/tasks"
)

type fakeResolver struct {
	mu     sync.Mutex
	images map[string]string
	errs   map[string]error
	urls   []string
}

func (f *fakeResolver) Resolve(_ context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	f.urls = append(f.urls, pageURL)
	f.mu.Unlock()
	if err, ok := f.errs[pageURL]; ok {
		return "", err
	}
	if imageURL, ok := f.images[pageURL]; ok {
		return imageURL, nil
	}
	return "", pipeline.ErrNoImage
}

func staticFactory(resolver pipeline.ImageResolver, teardowns *atomic.Int32) pipeline.ResolverFactory {
	return func(context.Context) (pipeline.ImageResolver, func(), error) {
		return resolver, func() { teardowns.Add(1) }, nil
	}
}

func sessionOf(fetcher pipeline.ByteFetcher) pipeline.SessionFactory {
	return func() pipeline.ByteFetcher { return fetcher }
}

func TestBrowserStageSavesImage(t *testing.T) {
	gate := newGate(t)
	imageURL := "https://cdn.example.com/produto/1.jpg"
	resolver := &fakeResolver{images: map[string]string{productURL("101"): imageURL}}
	session := &fakeBytes{data: map[string][]byte{imageURL: []byte("jpeg")}}

	var teardowns atomic.Int32
	stage := pipeline.NewBrowserStage(staticFactory(resolver, &teardowns), sessionOf(session), gate, testBaseURL, 1, zap.NewNop())
	results := stage.Run(context.Background(), []tasks.Task{{ProductID: "101", StorageKey: "ERP-1"}})

	require.Len(t, results, 1)
	assert.Equal(t, pipeline.StatusSaved, results[0].Status)
	assert.Equal(t, "browser", results[0].Stage)
	assert.True(t, gate.Exists("ERP-1"))
	assert.Equal(t, int32(1), teardowns.Load(), "worker must release its browser")
}

func TestBrowserStageRejectsPlaceholder(t *testing.T) {
	gate := newGate(t)
	resolver := &fakeResolver{images: map[string]string{
		productURL("101"):   "https://cdn.example.com/default_image.png",
		productURL("ERP-1"): "https://cdn.example.com/default_image.png",
	}}

	var teardowns atomic.Int32
	stage := pipeline.NewBrowserStage(staticFactory(resolver, &teardowns), sessionOf(&fakeBytes{}), gate, testBaseURL, 1, zap.NewNop())
	results := stage.Run(context.Background(), []tasks.Task{{ProductID: "101", StorageKey: "ERP-1"}})

	require.Len(t, results, 1)
	assert.Equal(t, pipeline.StatusFailed, results[0].Status)
	assert.Equal(t, pipeline.ReasonNoImage, results[0].Reason)
	assert.Len(t, resolver.urls, 2, "both candidates should be rendered")
}

func TestBrowserStageSkipsExisting(t *testing.T) {
	gate := newGate(t)
	require.NoError(t, gate.Write("ERP-1", []byte("original")))
	resolver := &fakeResolver{}

	var teardowns atomic.Int32
	stage := pipeline.NewBrowserStage(staticFactory(resolver, &teardowns), sessionOf(&fakeBytes{}), gate, testBaseURL, 1, zap.NewNop())
	results := stage.Run(context.Background(), []tasks.Task{{ProductID: "101", StorageKey: "ERP-1"}})

	require.Len(t, results, 1)
	assert.Equal(t, pipeline.StatusAlreadyPresent, results[0].Status)
	assert.Empty(t, resolver.urls)
}

func TestBrowserStageWorkerIsolation(t *testing.T) {
	gate := newGate(t)
	imageURL := func(id string) string { return "https://cdn.example.com/produto/" + id + ".jpg" }

	images := map[string]string{}
	data := map[string][]byte{}
	var list []tasks.Task
	for _, id := range []string{"101", "102", "103", "104"} {
		images[productURL(id)] = imageURL(id)
		data[imageURL(id)] = []byte("jpeg")
		list = append(list, tasks.Task{ProductID: id, StorageKey: "ERP-" + id})
	}

	// The first worker's browser fails to start; the survivor must still
	// drain the whole queue.
	var calls atomic.Int32
	var teardowns atomic.Int32
	factory := func(context.Context) (pipeline.ImageResolver, func(), error) {
		if calls.Add(1) == 1 {
			return nil, nil, errors.New("chrome exited during warmup")
		}
		return &fakeResolver{images: images}, func() { teardowns.Add(1) }, nil
	}

	stage := pipeline.NewBrowserStage(factory, sessionOf(&fakeBytes{data: data}), gate, testBaseURL, 2, zap.NewNop())
	results := stage.Run(context.Background(), list)

	require.Len(t, results, len(list))
	for _, res := range results {
		assert.Equal(t, pipeline.StatusSaved, res.Status, "task %s", res.Task.ProductID)
	}
	assert.Equal(t, int32(1), teardowns.Load())
}

func TestBrowserStageAllWorkersFail(t *testing.T) {
	gate := newGate(t)
	factory := func(context.Context) (pipeline.ImageResolver, func(), error) {
		return nil, nil, errors.New("no usable chrome binary")
	}

	list := []tasks.Task{
		{ProductID: "101", StorageKey: "ERP-101"},
		{ProductID: "102", StorageKey: "ERP-102"},
	}
	stage := pipeline.NewBrowserStage(factory, sessionOf(&fakeBytes{}), gate, testBaseURL, 2, zap.NewNop())
	results := stage.Run(context.Background(), list)

	require.Len(t, results, len(list))
	for _, res := range results {
		assert.Equal(t, pipeline.StatusFailed, res.Status)
		assert.Equal(t, pipeline.ReasonUnavailable, res.Reason)
	}
}

func TestBrowserStageRenderErrorFallsBack(t *testing.T) {
	gate := newGate(t)
	imageURL := "https://cdn.example.com/produto/2.jpg"
	resolver := &fakeResolver{
		errs:   map[string]error{productURL("101"): errors.New("navigation timeout")},
		images: map[string]string{productURL("ERP-1"): imageURL},
	}
	session := &fakeBytes{data: map[string][]byte{imageURL: []byte("jpeg")}}

	var teardowns atomic.Int32
	stage := pipeline.NewBrowserStage(staticFactory(resolver, &teardowns), sessionOf(session), gate, testBaseURL, 1, zap.NewNop())
	results := stage.Run(context.Background(), []tasks.Task{{ProductID: "101", StorageKey: "ERP-1"}})

	require.Len(t, results, 1)
	assert.Equal(t, pipeline.StatusSaved, results[0].Status)
	assert.Equal(t, imageURL, results[0].ImageURL)
}
