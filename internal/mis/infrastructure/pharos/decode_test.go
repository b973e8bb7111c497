package pharos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

func TestDecode_JaggedCSVKeepsEveryRow(t *testing.T) {
	body := "\"C\",\"ISO-NE\"\r\n\"H\",\"A\",\"B\",\"C\"\r\n\"D\",\"1\",\"2\",\"3\",\"4\",\"5\"\r\n"
	table, err := Decode([]byte(body), "text/csv")
	require.NoError(t, err)
	assert.Empty(t, table.Header)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, 6, table.Width())
	assert.Equal(t, "5", table.Cell(2, 5))
}

func TestDecode_WideCSVFallsBackToMarkedHeader(t *testing.T) {
	wide := make([]string, 45)
	for i := range wide {
		wide[i] = "v"
	}
	body := "C,preamble\nH," + strings.Join(wide[1:], ",") + "\nD," + strings.Join(wide[1:], ",") + "\n"
	table, err := Decode([]byte(body), "text/csv")
	require.NoError(t, err)
	assert.Len(t, table.Header, 45)
	assert.Equal(t, 1, table.Len())
}

func TestDecode_JSONShapes(t *testing.T) {
	cases := map[string]string{
		"array":   `[{"a":1,"b":{"c":"x"}},{"a":2,"b":{"c":null}}]`,
		"wrapped": `{"data":[{"a":1,"b":{"c":"x"}},{"a":2,"b":{"c":null}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			table, err := Decode([]byte(body), "application/json")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b.c"}, table.Header)
			require.Equal(t, 2, table.Len())
			assert.Equal(t, "1", table.Cell(0, table.Column("a")))
			assert.Equal(t, "x", table.Cell(0, table.Column("b.c")))
			assert.Equal(t, "", table.Cell(1, table.Column("b.c")))
		})
	}
}

func TestDecode_SingleObjectWithoutContentType(t *testing.T) {
	table, err := Decode([]byte(`{"status":"ok","count":3}`), "")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, "3", table.Cell(0, table.Column("count")))
}

func TestDecode_Unparseable(t *testing.T) {
	body := strings.Repeat("x,", 50) + "x"
	_, err := Decode([]byte(body), "application/octet-stream")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application/octet-stream")
	assert.Contains(t, err.Error(), "first 1000 chars")
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode([]byte("  \n"), "text/csv")
	require.ErrorIs(t, err, domain.ErrEmptyResponse)
}
