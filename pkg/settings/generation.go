package settings

import (
	_ "embed"
	"fmt"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GenerationConfig holds the sampling parameters sent with every completion.
type GenerationConfig struct {
	Model            string  `yaml:"model" json:"model"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	TopP             float64 `yaml:"top_p" json:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" json:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty" json:"presence_penalty"`
}

//go:embed "defaults.yaml"
var defaultsYAML []byte

type defaultsFile struct {
	Generation GenerationConfig `yaml:"generation"`
}

var defaultGeneration = mustLoadDefaults()

func mustLoadDefaults() GenerationConfig {
	var d defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		panic(fmt.Sprintf("invalid embedded generation defaults: %v", err))
	}
	return d.Generation
}

func NewGenerationConfig() *GenerationConfig {
	c := defaultGeneration
	return &c
}

func (c *GenerationConfig) Clone() *GenerationConfig {
	return clone.Clone(c).(*GenerationConfig)
}

func (c *GenerationConfig) Validate() error {
	if _, ok := LookupModel(c.Model); !ok {
		return &UnknownModelError{Model: c.Model}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.Errorf("temperature %v out of range [0,2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return errors.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// GenerationUpdate is a partial GenerationConfig. Nil fields are left as they are.
type GenerationUpdate struct {
	Model            *string  `yaml:"model,omitempty"`
	Temperature      *float64 `yaml:"temperature,omitempty"`
	MaxTokens        *int     `yaml:"max_tokens,omitempty"`
	TopP             *float64 `yaml:"top_p,omitempty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `yaml:"presence_penalty,omitempty"`
}

// FullUpdate turns a complete config into an update that sets every field,
// which keeps its max_tokens even when the model changes.
func FullUpdate(c GenerationConfig) GenerationUpdate {
	return GenerationUpdate{
		Model:            &c.Model,
		Temperature:      &c.Temperature,
		MaxTokens:        &c.MaxTokens,
		TopP:             &c.TopP,
		FrequencyPenalty: &c.FrequencyPenalty,
		PresencePenalty:  &c.PresencePenalty,
	}
}

func (u GenerationUpdate) IsEmpty() bool {
	return u.Model == nil && u.Temperature == nil && u.MaxTokens == nil &&
		u.TopP == nil && u.FrequencyPenalty == nil && u.PresencePenalty == nil
}

// Apply returns a new config with the update merged in. Switching to another
// model resets max_tokens to half the model's context size, unless the same
// update sets max_tokens explicitly. The receiver is not modified.
func (c *GenerationConfig) Apply(u GenerationUpdate) (*GenerationConfig, error) {
	ret := c.Clone()

	if u.Model != nil && *u.Model != c.Model {
		m, ok := LookupModel(*u.Model)
		if !ok {
			return nil, &UnknownModelError{Model: *u.Model}
		}
		ret.Model = m.Name
		if u.MaxTokens == nil {
			ret.MaxTokens = m.DefaultMaxTokens()
		}
	}
	if u.Temperature != nil {
		ret.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		ret.MaxTokens = *u.MaxTokens
	}
	if u.TopP != nil {
		ret.TopP = *u.TopP
	}
	if u.FrequencyPenalty != nil {
		ret.FrequencyPenalty = *u.FrequencyPenalty
	}
	if u.PresencePenalty != nil {
		ret.PresencePenalty = *u.PresencePenalty
	}

	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

var ErrUnknownModel = errors.New("unknown model")

type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

func (e *UnknownModelError) Is(target error) bool {
	return target == ErrUnknownModel
}
