package validator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kosarica/feed-service/internal/types"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.tmp")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	semicolon := types.CSVSettings{Delimiter: ";", Enclosure: "'"}
	noHeader := types.CSVSettings{IncludeHeader: types.BoolPtr(false)}

	tests := []struct {
		name    string
		format  types.FileFormat
		csv     types.CSVSettings
		content string
		valid   bool
	}{
		{"xml ok", types.FormatXML, types.CSVSettings{}, `<?xml version="1.0"?><rss xmlns:g="x"><item><g:id>1</g:id></item></rss>`, true},
		{"xml two roots", types.FormatXML, types.CSVSettings{}, `<a></a><b></b>`, false},
		{"xml unclosed", types.FormatXML, types.CSVSettings{}, `<a><b></a>`, false},
		{"xml truncated", types.FormatXML, types.CSVSettings{}, `<a><b>x</b>`, false},
		{"xml empty", types.FormatXML, types.CSVSettings{}, ``, false},

		{"csv ok", types.FormatCSV, types.CSVSettings{}, "id,title\n1,\"a, b\"\n2,\"multi\nline\"\n", true},
		{"csv doubled quotes", types.FormatCSV, types.CSVSettings{}, "id,title\n1,\"say \"\"hi\"\", ok\"\n", true},
		{"csv short row", types.FormatCSV, types.CSVSettings{}, "id,title\n1\n", false},
		{"csv unterminated", types.FormatCSV, types.CSVSettings{}, "id,title\n1,\"open\n", false},
		{"csv custom enclosure", types.FormatCSV, semicolon, "id;title\n1;'x; y'\n", true},
		{"csv custom enclosure mismatch", types.FormatCSV, semicolon, "id;title\n1;\"x; y\"\n", false},
		{"csv bom crlf", types.FormatCSV, types.CSVSettings{}, "\xef\xbb\xbfid,title\r\n1,x\r\n", true},
		{"csv empty without header", types.FormatCSV, noHeader, "", true},
		{"csv columns without header", types.FormatCSV, types.CSVSettings{IncludeHeader: types.BoolPtr(false), Columns: []string{"a", "b"}}, "1,2\n3\n", false},

		{"json ok", types.FormatJSON, types.CSVSettings{}, `{"products":[{"id":1}]}`, true},
		{"json truncated", types.FormatJSON, types.CSVSettings{}, `[{"id":1},`, false},

		{"jsonl ok", types.FormatJSONL, types.CSVSettings{}, "{\"id\":1}\n{\"id\":2}\n\n", true},
		{"jsonl bad line", types.FormatJSONL, types.CSVSettings{}, "{\"id\":1}\n{\"id\":\n", false},
		{"jsonl no trailing newline", types.FormatJSONL, types.CSVSettings{}, "{\"id\":1}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)
			err := Validate(path, &types.Feed{Format: tt.format, CSV: tt.csv}, Options{})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFeed)
			}
		})
	}
}

func TestValidate_LargeFilesUseCheapChecks(t *testing.T) {
	opts := Options{FullCheckLimit: 16, JSONLSampleLines: 2}

	// invalid inside but balanced brackets
	jsonPath := writeFile(t, "[{\"id\":1},{\"id\":}]  \n")
	assert.NoError(t, Validate(jsonPath, &types.Feed{Format: types.FormatJSON}, opts))

	unbalanced := writeFile(t, "[{\"id\":1},{\"id\":2}\n")
	assert.ErrorIs(t, Validate(unbalanced, &types.Feed{Format: types.FormatJSON}, opts), ErrInvalidFeed)

	lines := writeFile(t, "{\"id\":1}\n{\"id\":2}\nnot json\n")
	assert.NoError(t, Validate(lines, &types.Feed{Format: types.FormatJSONL}, opts), "only sampled lines are checked")
	assert.ErrorIs(t, Validate(lines, &types.Feed{Format: types.FormatJSONL}, Options{}), ErrInvalidFeed)
}

func TestValidate_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "id"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	assert.NoError(t, Validate(path, &types.Feed{Format: types.FormatXLSX}, Options{}))

	broken := writeFile(t, "not a zip")
	assert.ErrorIs(t, Validate(broken, &types.Feed{Format: types.FormatXLSX}, Options{}), ErrInvalidFeed)
}

func TestValidate_Errors(t *testing.T) {
	err := Validate(filepath.Join(t.TempDir(), "missing"), &types.Feed{Format: types.FormatXML}, Options{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidFeed)

	path := writeFile(t, "x")
	assert.ErrorIs(t, Validate(path, &types.Feed{Format: "yaml"}, Options{}), types.ErrUnsupportedFormat)
}

func TestSplitRecord(t *testing.T) {
	tests := []struct {
		in   string
		want []string
		open bool
	}{
		{`a,b,c`, []string{"a", "b", "c"}, false},
		{`"a,b",c`, []string{"a,b", "c"}, false},
		{`"say ""hi""",x`, []string{`say "hi"`, "x"}, false},
		{`a,"open`, []string{"a", "open"}, true},
		{`,`, []string{"", ""}, false},
		{`čaša,ž`, []string{"čaša", "ž"}, false},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.in, `"`, "q"), func(t *testing.T) {
			got, open := SplitRecord(tt.in, ',', '"')
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.open, open)
		})
	}
}
