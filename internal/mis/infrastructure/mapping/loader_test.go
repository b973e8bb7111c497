package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

const mappingCSV = "\uFEFFISO-NE Name,FLP Asset Name,Operation Type,PNode ID,Location\n" +
	"CABOT,CABOT_A,Generation,12345.0,UN.CABOT\n" +
	"NORTHFIELD MOUNTAIN PUMP 1,NFM_P1,Pumping,555,UN.NFM\n" +
	",,,,\n"

func TestLoad_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	require.NoError(t, os.WriteFile(path, []byte(mappingCSV), 0o644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	byNode := table.ByNode("12345")
	require.Len(t, byNode, 1)
	assert.Equal(t, "CABOT_A", byNode[0].Asset)
	assert.Equal(t, "12345", byNode[0].NodeID)

	pump, ok := table.FirstByName("NORTHFIELD MOUNTAIN PUMP 1")
	require.True(t, ok)
	assert.Equal(t, domain.OpsTypePumping, pump.OpsType)
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.xlsx")
	f := excelize.NewFile()
	rows := [][]any{
		{"ISO-NE Name", "FLP Asset Name", "Operation Type", "PNode ID"},
		{"CABOT", "CABOT_A", "Generation", 12345},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Len(t, table.ByNode("12345"), 1)
}

func TestLoad_FailsFast(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	require.ErrorIs(t, err, domain.ErrMappingUnavailable)

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name,Asset\nCABOT,CABOT_A\n"), 0o644))
	_, err = Load(path)
	require.ErrorIs(t, err, domain.ErrMappingUnavailable)
	assert.Contains(t, err.Error(), ColSourceName)
}
