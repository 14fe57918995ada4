package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-compare/internal/config"
	"github.com/sells-group/policy-compare/internal/settings"
	"github.com/sells-group/policy-compare/internal/store"
)

func setTestConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old := cfg
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "test.db"),
		},
		Data: config.DataConfig{
			Dir:          dir,
			SettingsPath: filepath.Join(dir, "settings.json"),
			ExportDir:    filepath.Join(dir, "exports"),
		},
	}
	t.Cleanup(func() { cfg = old })
}

// runCommand invokes a command's RunE the way Execute would, with a
// context attached.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetContext(context.Background())
	return cmd.RunE(cmd, args)
}

func TestQuestionsImport(t *testing.T) {
	setTestConfig(t)

	yamlPath := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
categories:
  - fire damage
  - water damage
questions:
  - text: What is the dwelling limit?
    applies_to_categories:
      - fire damage
`), 0o644))

	require.NoError(t, runCommand(t, questionsImportCmd, yamlPath))

	st, err := store.Open(context.Background(), cfg.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	qc, err := st.LoadQuestionConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, qc)
	assert.Equal(t, []string{"Fire Damage", "Water Damage"}, qc.Categories)
	require.Len(t, qc.Questions, 1)
	assert.Equal(t, "q001", qc.Questions[0].ID)
	assert.Equal(t, []string{"Fire Damage"}, qc.Questions[0].AppliesTo)
}

func TestQuestionsImport_UnknownCategory(t *testing.T) {
	setTestConfig(t)

	yamlPath := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
categories:
  - Fire Damage
questions:
  - text: Is mold covered?
    applies_to_categories:
      - Water Damage
`), 0o644))

	err := runCommand(t, questionsImportCmd, yamlPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestSettingsSetAndGet(t *testing.T) {
	setTestConfig(t)

	err := runCommand(t, settingsSetCmd, settings.KeyOpenAIEndpoint, "https://aoai.example.com")
	require.NoError(t, err)

	st := newSettingsStore()
	assert.Equal(t, "https://aoai.example.com", st.Get(settings.KeyOpenAIEndpoint))

	// Clearing falls back to the environment value.
	require.NoError(t, runCommand(t, settingsSetCmd, settings.KeyOpenAIEndpoint))
	assert.NotContains(t, newSettingsStore().Overrides(), settings.KeyOpenAIEndpoint)
}

func TestSettingsSet_UnknownKey(t *testing.T) {
	setTestConfig(t)

	err := runCommand(t, settingsSetCmd, "BOGUS", "x")
	require.Error(t, err)
}

func TestExtract_RequiresQuestions(t *testing.T) {
	setTestConfig(t)

	err := runCommand(t, extractCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no question configuration")
}

func TestAnalyze_RequiresPrompt(t *testing.T) {
	setTestConfig(t)

	err := runCommand(t, analyzeCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt")
}
