package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMarkdown(t *testing.T) {
	res, err := Extract(context.Background(), "../../testdata/extract/sample.md")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Sample")
	assert.Equal(t, "../../testdata/extract/sample.md", res.Metadata.Path)
}

func TestExtractStripsBOMAndNormalizesCRLF(t *testing.T) {
	res, err := Extract(context.Background(), "../../testdata/extract/sample_bom_crlf.txt")
	require.NoError(t, err)
	assert.NotContains(t, res.Text, "﻿")
	assert.NotContains(t, res.Text, "\r")
	assert.Equal(t, "line one\nline two\n", res.Text)
}

func TestExtractJSONPromotesContentField(t *testing.T) {
	res, err := Extract(context.Background(), "../../testdata/extract/sample_content.json")
	require.NoError(t, err)
	assert.Equal(t, "Body text promoted from the content field.", res.Text)
}

func TestExtractJSONSerializesSectionsInSourceOrder(t *testing.T) {
	res, err := Extract(context.Background(), "../../testdata/extract/sample_sections.json")
	require.NoError(t, err)

	introIdx := indexOf(res.Text, "intro")
	stepsIdx := indexOf(res.Text, "steps")
	wrapIdx := indexOf(res.Text, "wrap_up")
	require.NotEqual(t, -1, introIdx)
	require.NotEqual(t, -1, stepsIdx)
	require.NotEqual(t, -1, wrapIdx)
	assert.True(t, introIdx < stepsIdx)
	assert.True(t, stepsIdx < wrapIdx)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	_, err := Extract(context.Background(), "../../testdata/extract/sample.xyz")
	require.Error(t, err)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := Extract(context.Background(), "../../testdata/extract/does-not-exist.md")
	require.Error(t, err)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
