package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserve/pkg/llm"
)

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *fakeProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeProvider) Chat(context.Context, []llm.Message) (string, error) {
	return "chat", nil
}

func (f *fakeProvider) Generate(context.Context, string, string) (string, error) {
	return "generated", nil
}

func (f *fakeProvider) Name() string { return f.name }

func TestNewProviderUnknown(t *testing.T) {
	_, err := llm.NewProvider("does-not-exist", nil)
	assert.Error(t, err)
}

func TestRegisterAndCreateProvider(t *testing.T) {
	llm.RegisterProvider("fake-full", func(map[string]any) (llm.Provider, error) {
		return &fakeProvider{name: "fake-full"}, nil
	})

	p, err := llm.NewProvider("fake-full", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-full", p.Name())

	// Full providers also satisfy the split lookups.
	ep, err := llm.NewEmbeddingProvider("fake-full", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-full", ep.Name())

	cp, err := llm.NewChatProvider("fake-full", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-full", cp.Name())
}

func TestDedicatedFactoryWinsOverFullProvider(t *testing.T) {
	llm.RegisterProvider("fake-split", func(map[string]any) (llm.Provider, error) {
		return &fakeProvider{name: "full"}, nil
	})
	llm.RegisterEmbeddingProvider("fake-split", func(map[string]any) (llm.EmbeddingProvider, error) {
		return &fakeProvider{name: "embed-only"}, nil
	})

	ep, err := llm.NewEmbeddingProvider("fake-split", nil)
	require.NoError(t, err)
	assert.Equal(t, "embed-only", ep.Name())
}

func TestListProviders(t *testing.T) {
	llm.RegisterChatProvider("fake-chat", func(map[string]any) (llm.ChatProvider, error) {
		return &fakeProvider{name: "fake-chat"}, nil
	})

	names := llm.ListProviders()
	assert.Contains(t, names, "fake-chat")
}
