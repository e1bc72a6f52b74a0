package settings

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGenerationConfig(t *testing.T) {
	c := NewGenerationConfig()
	assert.Equal(t, openai.GPT3Dot5Turbo16K, c.Model)
	assert.Equal(t, 0.0, c.Temperature)
	assert.Equal(t, 256, c.MaxTokens)
	assert.Equal(t, 1.0, c.TopP)
	assert.Equal(t, 0.0, c.FrequencyPenalty)
	assert.Equal(t, 0.6, c.PresencePenalty)
	require.NoError(t, c.Validate())

	c.MaxTokens = 1
	assert.Equal(t, 256, NewGenerationConfig().MaxTokens, "defaults are not shared")
}

func TestModelChangeResetsMaxTokens(t *testing.T) {
	c := NewGenerationConfig()
	model := openai.GPT4

	updated, err := c.Apply(GenerationUpdate{Model: &model})
	require.NoError(t, err)
	assert.Equal(t, openai.GPT4, updated.Model)
	assert.Equal(t, 4096, updated.MaxTokens)
	assert.Equal(t, 256, c.MaxTokens, "receiver untouched")
}

func TestModelChangeKeepsExplicitMaxTokens(t *testing.T) {
	c := NewGenerationConfig()
	model := openai.GPT432K
	maxTokens := 1000

	updated, err := c.Apply(GenerationUpdate{Model: &model, MaxTokens: &maxTokens})
	require.NoError(t, err)
	assert.Equal(t, 1000, updated.MaxTokens)
}

func TestSameModelKeepsMaxTokens(t *testing.T) {
	c := NewGenerationConfig()
	model := c.Model
	temp := 0.7

	updated, err := c.Apply(GenerationUpdate{Model: &model, Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, 256, updated.MaxTokens)
	assert.Equal(t, 0.7, updated.Temperature)
}

func TestApplyRejectsInvalidValues(t *testing.T) {
	c := NewGenerationConfig()

	model := "davinci"
	_, err := c.Apply(GenerationUpdate{Model: &model})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel))

	temp := 2.5
	_, err = c.Apply(GenerationUpdate{Temperature: &temp})
	require.Error(t, err)

	zero := 0
	_, err = c.Apply(GenerationUpdate{MaxTokens: &zero})
	require.Error(t, err)
}

func TestFullUpdateKeepsLoadedMaxTokens(t *testing.T) {
	loaded := GenerationConfig{
		Model:       openai.GPT3Dot5Turbo,
		Temperature: 1,
		MaxTokens:   300,
		TopP:        0.9,
	}
	u := FullUpdate(loaded)
	assert.False(t, u.IsEmpty())
	assert.True(t, GenerationUpdate{}.IsEmpty())

	updated, err := NewGenerationConfig().Apply(u)
	require.NoError(t, err)
	assert.Equal(t, loaded, *updated)
}

func TestModels(t *testing.T) {
	models := Models()
	require.Len(t, models, 4)
	for i := 1; i < len(models); i++ {
		assert.Less(t, models[i-1].Name, models[i].Name)
	}

	m, ok := LookupModel(openai.GPT3Dot5Turbo16K)
	require.True(t, ok)
	assert.Equal(t, 8192, m.DefaultMaxTokens())

	_, ok = LookupModel("gpt-2")
	assert.False(t, ok)
}
