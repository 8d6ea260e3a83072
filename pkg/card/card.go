package card

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	License     = "cc-by-4.0"
	LibraryName = "nemo"

	ReadmeFileName = "README.md"
)

// BaseTags always lead the tag list, in this order.
var BaseTags = []string{
	"automatic-speech-recognition",
	"speech",
	"audio",
	"NeMo",
	"pytorch",
}

// ModelCard is the front matter of the hosting README. Field order is the rendered key order.
type ModelCard struct {
	Language    []string          `yaml:"language"`
	License     string            `yaml:"license"`
	Datasets    []string          `yaml:"datasets"`
	Thumbnail   *string           `yaml:"thumbnail"`
	Tags        []string          `yaml:"tags"`
	ModelIndex  []ModelIndexEntry `yaml:"model-index"`
	LibraryName string            `yaml:"library_name"`
}

type ModelIndexEntry struct {
	Name    string `yaml:"name"`
	Results []any  `yaml:"results"`
}

type Options struct {
	Language string
	Tags     []string
	Datasets []string
}

// Build assembles the card for the model; it is deterministic for equal inputs.
func Build(opts Options, modelName string) ModelCard {
	tags := make([]string, 0, len(BaseTags)+len(opts.Tags))
	tags = append(tags, BaseTags...)
	tags = append(tags, opts.Tags...)

	datasets := make([]string, 0, len(opts.Datasets))
	for _, name := range opts.Datasets {
		datasets = append(datasets, NormalizeDatasetName(name))
	}
	return ModelCard{
		Language:    []string{opts.Language},
		License:     License,
		Datasets:    datasets,
		Thumbnail:   nil,
		Tags:        tags,
		ModelIndex:  []ModelIndexEntry{{Name: modelName, Results: []any{}}},
		LibraryName: LibraryName,
	}
}

func NormalizeDatasetName(name string) string {
	return strings.ReplaceAll(name, " ", "-")
}

// FrontMatter renders the card between "---" lines.
func (c ModelCard) FrontMatter() ([]byte, error) {
	content, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode model card: %w", err)
	}
	buf := bytes.NewBufferString("---\n")
	buf.Write(content)
	buf.WriteString("---\n")
	return buf.Bytes(), nil
}

// Render returns the full README: front matter, a blank line and the body for repoID.
func Render(c ModelCard, repoID string) ([]byte, error) {
	frontmatter, err := c.FrontMatter()
	if err != nil {
		return nil, err
	}
	body, err := Body(repoID)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(frontmatter)
	buf.WriteString("\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
