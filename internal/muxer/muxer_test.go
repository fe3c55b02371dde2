package muxer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	m := New()
	err := m.Validate(context.Background(), path, 30)
	require.Error(t, err)
	assert.Equal(t, jobkind.OutputInvalid, jobkind.KindOf(err))
}

func TestValidateRejectsMissingFile(t *testing.T) {
	m := New()
	err := m.Validate(context.Background(), "/nonexistent/out.mp4", 30)
	require.Error(t, err)
	assert.Equal(t, jobkind.OutputInvalid, jobkind.KindOf(err))
}
