package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleter_Unconfigured(t *testing.T) {
	c, err := NewCompleter(CompleterSettings{})
	require.NoError(t, err)
	assert.Nil(t, c, "missing credentials mean the stage is skipped, not an error")
}

func TestNewCompleter_Providers(t *testing.T) {
	c, err := NewCompleter(CompleterSettings{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "gpt-4o-mini", c.ModelName())

	c, err = NewCompleter(CompleterSettings{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = NewCompleter(CompleterSettings{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)
}

func TestNewEmbedder_Providers(t *testing.T) {
	e, err := NewEmbedder(EmbedderSettings{})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = NewEmbedder(EmbedderSettings{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1536, e.Dimensions())

	_, err = NewEmbedder(EmbedderSettings{Provider: ProviderAnthropic, APIKey: "k"})
	assert.Error(t, err, "anthropic has no embeddings endpoint")
}
