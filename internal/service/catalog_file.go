package service

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"llm-eval-go/internal/model"

	"gorm.io/datatypes"
)

// 目录文件格式
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{"question", "expected_output", "contexts", "meta_data", "revision"}

// importPair 兼容 camelCase 与 snake_case 两种字段名。
type importPair struct {
	Question            string         `json:"question"`
	ExpectedOutput      string         `json:"expectedOutput"`
	ExpectedOutputSnake string         `json:"expected_output"`
	Contexts            []string       `json:"contexts"`
	MetaData            map[string]any `json:"metaData"`
	MetaDataSnake       map[string]any `json:"meta_data"`
}

// exportPair 是下载文件中的一行，可以原样再上传。
type exportPair struct {
	Question       string         `json:"question"`
	ExpectedOutput string         `json:"expectedOutput"`
	Contexts       []string       `json:"contexts"`
	MetaData       map[string]any `json:"metaData"`
	Revision       int            `json:"revision"`
}

// fileFormat 按扩展名判断上传文件格式。
func fileFormat(fileName string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", invalidf("unsupported file type %q, expected .json or .csv", fileName)
	}
}

// ParsePairs 解析上传的 JSON 或 CSV 目录文件。返回的问答对尚未分配 ID。
func ParsePairs(fileName string, r io.Reader) ([]*model.QAPair, error) {
	format, err := fileFormat(fileName)
	if err != nil {
		return nil, err
	}
	var rows []importPair
	if format == FormatJSON {
		rows, err = decodeJSONPairs(r)
	} else {
		rows, err = decodeCSVPairs(r)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, invalidf("file contains no qa pairs")
	}

	pairs := make([]*model.QAPair, 0, len(rows))
	for i, row := range rows {
		expected := row.ExpectedOutput
		if expected == "" {
			expected = row.ExpectedOutputSnake
		}
		meta := row.MetaData
		if meta == nil {
			meta = row.MetaDataSnake
		}
		if strings.TrimSpace(row.Question) == "" {
			return nil, invalidf("row %d: question is required", i+1)
		}
		if strings.TrimSpace(expected) == "" {
			return nil, invalidf("row %d: expected output is required", i+1)
		}
		contexts := row.Contexts
		if contexts == nil {
			contexts = []string{}
		}
		if meta == nil {
			meta = map[string]any{}
		}
		pairs = append(pairs, &model.QAPair{
			Question:       row.Question,
			ExpectedOutput: expected,
			Contexts:       datatypes.NewJSONSlice(contexts),
			MetaData:       datatypes.JSONMap(meta),
		})
	}
	return pairs, nil
}

func decodeJSONPairs(r io.Reader) ([]importPair, error) {
	var rows []importPair
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, invalidf("invalid json catalog: %v", err)
	}
	return rows, nil
}

func decodeCSVPairs(r io.Reader) ([]importPair, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, invalidf("invalid csv catalog: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), "_", "")
		cols[key] = i
	}
	qIdx, ok := cols["question"]
	if !ok {
		return nil, invalidf("csv header must contain question")
	}
	aIdx, ok := cols["expectedoutput"]
	if !ok {
		return nil, invalidf("csv header must contain expected_output")
	}
	cIdx, hasContexts := cols["contexts"]
	mIdx, hasMeta := cols["metadata"]

	var rows []importPair
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalidf("invalid csv catalog: %v", err)
		}
		row := importPair{Question: record[qIdx], ExpectedOutput: record[aIdx]}
		if hasContexts {
			if row.Contexts, err = parseCSVContexts(record[cIdx]); err != nil {
				return nil, invalidf("line %d: %v", line, err)
			}
		}
		if hasMeta && strings.TrimSpace(record[mIdx]) != "" {
			if err := json.Unmarshal([]byte(record[mIdx]), &row.MetaData); err != nil {
				return nil, invalidf("line %d: meta_data must be a json object", line)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseCSVContexts 接受 JSON 字符串数组，或单个纯文本上下文。
func parseCSVContexts(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}, nil
	}
	if !strings.HasPrefix(value, "[") {
		return []string{value}, nil
	}
	var contexts []string
	if err := json.Unmarshal([]byte(value), &contexts); err != nil {
		return nil, fmt.Errorf("contexts must be a json string array")
	}
	return contexts, nil
}

// WritePairs 把问答对按指定格式写出。
func WritePairs(w io.Writer, format string, rows []exportPair) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, row := range rows {
			contexts, err := json.Marshal(row.Contexts)
			if err != nil {
				return err
			}
			meta, err := json.Marshal(row.MetaData)
			if err != nil {
				return err
			}
			if err := cw.Write([]string{row.Question, row.ExpectedOutput, string(contexts), string(meta), fmt.Sprint(row.Revision)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return invalidf("unsupported download format %q", format)
	}
}

func toExportPair(p model.QAPair, revision int) exportPair {
	contexts := []string(p.Contexts)
	if contexts == nil {
		contexts = []string{}
	}
	meta := map[string]any(p.MetaData)
	if meta == nil {
		meta = map[string]any{}
	}
	return exportPair{
		Question:       p.Question,
		ExpectedOutput: p.ExpectedOutput,
		Contexts:       contexts,
		MetaData:       meta,
		Revision:       revision,
	}
}
