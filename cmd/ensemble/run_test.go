package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemblelab/ensemble/pkg/errors"
	"github.com/ensemblelab/ensemble/result"
)

func TestEmitJSONMarkers(t *testing.T) {
	var buf bytes.Buffer
	emitJSON(&buf, result.NewFailure(errors.Newf("dataset has 10 rows")))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, resultsStartMarker, lines[0])
	assert.Equal(t, resultsEndMarker, lines[2])

	var failure result.Failure
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failure))
	assert.False(t, failure.Success)
	assert.Contains(t, failure.Error, "10 rows")
}

func TestResolveDataset(t *testing.T) {
	defer viper.Reset()

	csv := filepath.Join(t.TempDir(), "direct.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n"), 0o644))

	path, id, err := resolveDataset(csv)
	require.NoError(t, err)
	assert.Equal(t, csv, path)
	assert.Empty(t, id)

	viper.Set("data.dir", "/srv/data")
	viper.Set("datasets", map[string]string{"concrete": "concrete_data.csv"})

	path, id, err = resolveDataset("concrete")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/data", "concrete_data.csv"), path)
	assert.Equal(t, "concrete", id)

	_, _, err = resolveDataset("unknown")
	assert.Error(t, err)
}
