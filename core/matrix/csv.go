package matrix

import (
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ErrEmptyMatrix is returned when the input holds no rows at all.
var ErrEmptyMatrix = errors.New("matrix is empty")

// ReadCSV decodes a matrix export into a cell grid. Exports come out of
// spreadsheet tools in UTF-8 (with or without BOM), UTF-16 with BOM, or
// Windows-1252; anything that is not valid UTF-8 is read as the latter.
// Rows keep their own length.
func ReadCSV(data []byte) ([][]string, error) {
	decoded, err := decode(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var grid [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading matrix csv")
		}
		grid = append(grid, rec)
	}
	if len(grid) == 0 {
		return nil, ErrEmptyMatrix
	}
	return grid, nil
}

func decode(data []byte) ([]byte, error) {
	var enc encoding.Encoding
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		enc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case utf8.Valid(data):
		return data, nil
	default:
		enc = charmap.Windows1252
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, errors.Wrap(err, "decoding matrix")
	}
	return out, nil
}
