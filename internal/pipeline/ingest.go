package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/pkg/utils"
)

// ------------------- Work list -------------------

// LoadWorkList reads subhalo ids from the named column of a delimited file
// with a header row. A leading '#' on the header is ignored, and a single
// space delimiter means "any run of whitespace".
func LoadWorkList(path, column, delimiter string) ([]model.SubhaloID, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open work list: %w", err)
	}
	defer file.Close()

	if column == "" {
		column = "id"
	}
	if strings.TrimSpace(delimiter) == "" && delimiter != "" {
		return readWhitespaceIDs(file, column, path)
	}
	return readCSVIDs(file, column, delimiter, path)
}

func readCSVIDs(r io.Reader, column, delimiter, path string) ([]model.SubhaloID, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	if delimiter != "" {
		d := []rune(delimiter)
		if len(d) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
		}
		csvReader.Comma = d[0]
	}

	headers, err := csvReader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s has no header", model.ErrEmptyWorkList, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col, err := columnIndex(headers, column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var ids []model.SubhaloID
	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("CSV read error in %s: %w", path, err)
		}
		id, err := parseIDField(record, col, line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func readWhitespaceIDs(r io.Reader, column, path string) ([]model.SubhaloID, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		ids  []model.SubhaloID
		col  = -1
		line int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if col < 0 {
			if fields[0] == "#" {
				fields = fields[1:]
			}
			idx, err := columnIndex(fields, column)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			col = idx
			continue
		}
		id, err := parseIDField(fields, col, line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %s has no header", model.ErrEmptyWorkList, path)
	}
	return ids, nil
}

// columnIndex finds column among headers. Header names are cleaned the way
// numpy writes them: surrounding whitespace, quotes and a leading '#' go.
func columnIndex(headers []string, column string) (int, error) {
	for i, h := range headers {
		clean := strings.TrimSpace(h)
		clean = strings.ReplaceAll(clean, `"`, "")
		if i == 0 {
			clean = strings.TrimSpace(strings.TrimPrefix(clean, "#"))
		}
		if clean == column {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no %q column in header %v", column, headers)
}

func parseIDField(record []string, col, line int) (model.SubhaloID, error) {
	if col >= len(record) {
		return 0, fmt.Errorf("line %d: missing id field", line)
	}
	v, err := utils.ParseID(record[col])
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", line, err)
	}
	return model.SubhaloID(v), nil
}

// ------------------- Sample catalogue -------------------

// LoadSample reads a JSON object keyed by subhalo id. The keys, in ascending
// order, are the work list of runs driven by the sample.
func LoadSample(path string) (model.Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}

	var raw map[string]model.Properties
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode sample %s: %w", path, err)
	}

	cat := make(model.Catalogue, len(raw))
	for key, props := range raw {
		v, err := utils.ParseID(key)
		if err != nil {
			return nil, fmt.Errorf("sample %s: key %q: %w", path, key, err)
		}
		id := model.SubhaloID(v)
		if _, dup := cat[id]; dup {
			return nil, fmt.Errorf("%w: %d in %s", model.ErrDuplicateID, id, path)
		}
		if props == nil {
			props = model.Properties{}
		}
		cat[id] = props
	}
	return cat, nil
}
