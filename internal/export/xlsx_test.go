package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/uhi-cli/internal/model"
)

func TestWriteClassReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	counts := []model.ClassCount{
		{Class: 1, Label: "Mild", Pixels: 600},
		{Class: 2, Label: "Moderate", Pixels: 300},
		{Class: 5, Label: "Extreme", Pixels: 100},
	}
	params := model.Parameters{
		CenterLng: 80.2707,
		CenterLat: 13.0827,
		StartDate: "2023-01-01",
		EndDate:   "2024-01-01",
	}

	require.NoError(t, WriteClassReport(path, counts, params))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	classes, ok := f.Sheet["Classes"]
	require.True(t, ok)
	// header + 3 classes + total
	require.Len(t, classes.Rows, 5)
	assert.Equal(t, "Class", classes.Rows[0].Cells[0].String())
	assert.Equal(t, "Mild", classes.Rows[1].Cells[1].String())

	pixels, err := classes.Rows[1].Cells[2].Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 600, pixels)

	total, err := classes.Rows[4].Cells[2].Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 1000, total)

	_, ok = f.Sheet["Parameters"]
	assert.True(t, ok)
}
