package config

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/dataset"
	"github.com/wbrown/codemask/tokenizer"
)

// ConfigTestSuite runs each test from an empty working directory.
type ConfigTestSuite struct {
	suite.Suite
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), os.Chdir(suite.T().TempDir()))
	suite.T().Setenv("HF_TOKEN", "")
	suite.T().Setenv("CODEMASK_HF_TOKEN", "")
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestDefaults() {
	t := suite.T()
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "wuyetao/spp", cfg.Dataset.Name)
	assert.Equal(t, "train", cfg.Dataset.Split)
	assert.Equal(t, "spp_train.jsonl", cfg.Dataset.Output)
	assert.Equal(t, "spp_train.jsonl", cfg.Pipeline.Input)
	assert.Equal(t, "masked_and_tokenized.jsonl", cfg.Pipeline.Output)
	assert.Equal(t, "", cfg.HF.Token)

	masker, err := cfg.MaskerConfig()
	require.NoError(t, err)
	assert.Equal(t, codemask.NewMaskerConfig(), masker)

	opts, err := cfg.TokenizerOptions(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tokenizer.WordPiece, opts.Kind)
	assert.Equal(t, []string{"<mstart>", "<mend>"}, opts.Specials)

	fetch, err := cfg.FetchOptions(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dataset.SourceParquet, fetch.Source)
	assert.Equal(t, dataset.DefaultPageSize, fetch.PageSize)
}

func (suite *ConfigTestSuite) TestFileInWorkingDirectory() {
	t := suite.T()
	content := `
mask:
  seed: 7
  sampling: exhaustive
  docstrings: block
  maxRegions: 3
  skipPrefixes: ["#", "//"]
tokenizer:
  kind: bpe
  id: gpt2
dataset:
  source: rows
`
	require.NoError(t, os.WriteFile("codemask.yaml", []byte(content), 0644))
	cfg, err := Load("")
	require.NoError(t, err)

	masker, err := cfg.MaskerConfig()
	require.NoError(t, err)
	assert.Equal(t, codemask.SamplingExhaustive, masker.Sampling)
	assert.Equal(t, codemask.DocstringBlocks, masker.Docstrings)
	assert.Equal(t, 3, masker.MaxRegions)
	assert.Equal(t, 1, masker.MinRegions)
	assert.Equal(t, []string{"#", "//"}, masker.SkipPrefixes)
	require.NotNil(t, masker.Rand)
	expected := rand.New(rand.NewSource(7))
	assert.Equal(t, expected.Intn(1000), masker.Rand.Intn(1000))

	opts, err := cfg.TokenizerOptions(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tokenizer.BPE, opts.Kind)
	assert.Equal(t, "gpt2", opts.ID)

	fetch, err := cfg.FetchOptions(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dataset.SourceRows, fetch.Source)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	t := suite.T()
	path := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte("pipeline:\n  output: from-file.jsonl\n"), 0644))
	t.Setenv("CODEMASK_PIPELINE_OUTPUT", "from-env.jsonl")
	t.Setenv("CODEMASK_TOKENIZER_KIND", "sentencepiece")
	t.Setenv("HF_TOKEN", "hf_secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.jsonl", cfg.Pipeline.Output)
	assert.Equal(t, "sentencepiece", cfg.Tokenizer.Kind)
	assert.Equal(t, "hf_secret", cfg.HF.Token)
	assert.Equal(t, "hf_secret", cfg.Resolver(zerolog.Nop()).Auth)
}

func (suite *ConfigTestSuite) TestInvalidValues() {
	t := suite.T()
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Mask.Sampling = "sometimes"
	_, err = cfg.MaskerConfig()
	assert.Error(t, err)
	cfg.Tokenizer.Kind = "unigram"
	_, err = cfg.TokenizerOptions(nil, nil)
	assert.Error(t, err)
	cfg.Dataset.Source = "git"
	_, err = cfg.FetchOptions(nil, nil)
	assert.Error(t, err)
	cfg.Log.Format = "xml"
	_, err = cfg.Logger()
	assert.Error(t, err)
}
