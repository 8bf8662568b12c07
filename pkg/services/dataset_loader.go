package services

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"market-insights-api/pkg/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat 対応していないファイル形式
var ErrUnsupportedFormat = errors.New("サポートされていないファイル形式です。.xlsx, .csv, .json のいずれかを指定してください")

// ErrMissingColumn 必須列がない
var ErrMissingColumn = errors.New("必要な列が見つかりません")

// DatasetLoader アップロードされた表形式の調査データを読み込む
type DatasetLoader struct {
	logger *zap.Logger
}

// NewDatasetLoader 新しいローダーを作成
func NewDatasetLoader(logger *zap.Logger) *DatasetLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetLoader{logger: logger}
}

// findColumn 候補名のいずれかに一致する列（大文字小文字を無視）
func findColumn(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range header {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}

func formatOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// readTable CSVまたはExcel（先頭シート）を行の配列として読む
func readTable(filename string, r io.Reader) ([][]string, error) {
	switch formatOf(filename) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("Excelファイルの読み込みに失敗: %w", err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("Excelシートの行取得に失敗: %w", err)
		}
		return rows, nil
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("CSVファイルの解析に失敗: %w", err)
		}
		return rows, nil
	}
	return nil, ErrUnsupportedFormat
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// splitList ";" 区切りの集合列
func splitList(s string, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadResponses 回答者ごとの調査回答を読み込む
// 表形式では1行1回答者。動機・懸念は ";" 区切り、ベネフィット順位は ">" 区切り
func (l *DatasetLoader) LoadResponses(filename string, r io.Reader) ([]models.ResponseRecord, error) {
	if formatOf(filename) == ".json" {
		var out []models.ResponseRecord
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, fmt.Errorf("JSONの解析に失敗: %w", err)
		}
		return out, nil
	}

	rows, err := readTable(filename, r)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &EmptyInputError{Operation: "LoadResponses"}
	}
	return l.parseResponseRows(rows)
}

func (l *DatasetLoader) parseResponseRows(rows [][]string) ([]models.ResponseRecord, error) {
	header := rows[0]
	col := map[string]int{
		"id":         findColumn(header, "respondent_id", "id", "回答者ID"),
		"age":        findColumn(header, "age_band", "age", "年齢層"),
		"gender":     findColumn(header, "gender", "性別"),
		"income":     findColumn(header, "income_band", "income", "所得層"),
		"location":   findColumn(header, "location_class", "location", "居住地区分"),
		"education":  findColumn(header, "education", "学歴"),
		"ethnicity":  findColumn(header, "ethnicity", "エスニシティ"),
		"motivation": findColumn(header, "motivations", "motivation", "動機"),
		"concern":    findColumn(header, "concerns", "concern", "懸念"),
		"channel":    findColumn(header, "preferred_channel", "channel", "購買チャネル"),
		"format":     findColumn(header, "preferred_format", "format", "フォーマット"),
		"usage":      findColumn(header, "category_usage", "usage", "カテゴリ利用度"),
		"intent":     findColumn(header, "purchase_intent", "intent", "購買意向"),
		"price":      findColumn(header, "price_acceptance", "価格受容度"),
		"brand":      findColumn(header, "brand_fit", "ブランド適合度"),
		"benefits":   findColumn(header, "benefit_ranking", "benefits", "ベネフィット順位"),
	}
	if col["intent"] < 0 {
		return nil, fmt.Errorf("%w: purchase_intent（ヘッダー: %v）", ErrMissingColumn, header)
	}

	out := make([]models.ResponseRecord, 0, len(rows)-1)
	skipped := 0
	for i, row := range rows[1:] {
		intent, err := parseNumber(cell(row, col["intent"]))
		if err != nil {
			skipped++
			l.logger.Debug("購買意向を解析できない行をスキップします", zap.Int("row", i+2))
			continue
		}
		rec := models.ResponseRecord{
			RespondentID: cell(row, col["id"]),
			Demographics: models.Demographics{
				AgeBand:       cell(row, col["age"]),
				Gender:        cell(row, col["gender"]),
				IncomeBand:    cell(row, col["income"]),
				LocationClass: cell(row, col["location"]),
				Education:     cell(row, col["education"]),
				Ethnicity:     cell(row, col["ethnicity"]),
			},
			Psychographics: models.Psychographics{
				Motivations: splitList(cell(row, col["motivation"]), ";"),
				Concerns:    splitList(cell(row, col["concern"]), ";"),
			},
			Behaviors: models.Behaviors{
				PreferredChannel: cell(row, col["channel"]),
				PreferredFormat:  cell(row, col["format"]),
				CategoryUsage:    cell(row, col["usage"]),
			},
			PurchaseIntent: intent,
			BenefitRanking: splitList(cell(row, col["benefits"]), ">"),
		}
		if v, err := parseNumber(cell(row, col["price"])); err == nil {
			rec.PriceAcceptance = v
		}
		if v, err := parseNumber(cell(row, col["brand"])); err == nil {
			rec.BrandFit = v
		}
		out = append(out, rec)
	}

	if skipped > 0 {
		l.logger.Warn("解析できない行をスキップしました", zap.Int("skipped", skipped), zap.Int("loaded", len(out)))
	}
	return out, nil
}

// LoadPricing Van Westendorpの4質問を読み込む（表形式は1行1回答者）
func (l *DatasetLoader) LoadPricing(filename string, r io.Reader) (models.PriceSensitivityInput, error) {
	var input models.PriceSensitivityInput
	if formatOf(filename) == ".json" {
		if err := json.NewDecoder(r).Decode(&input); err != nil {
			return input, fmt.Errorf("JSONの解析に失敗: %w", err)
		}
		return input, nil
	}

	rows, err := readTable(filename, r)
	if err != nil {
		return input, err
	}
	if len(rows) < 2 {
		return input, &EmptyInputError{Operation: "LoadPricing"}
	}

	header := rows[0]
	cols := []struct {
		name string
		idx  int
		dst  *[]float64
	}{
		{"too_expensive", findColumn(header, "too_expensive", "高すぎる"), &input.TooExpensive},
		{"expensive_but_consider", findColumn(header, "expensive_but_consider", "expensive", "高いが検討する"), &input.ExpensiveButConsider},
		{"good_value", findColumn(header, "good_value", "お買い得"), &input.GoodValue},
		{"too_cheap", findColumn(header, "too_cheap", "安すぎる"), &input.TooCheap},
	}
	for _, c := range cols {
		if c.idx < 0 {
			return input, fmt.Errorf("%w: %s", ErrMissingColumn, c.name)
		}
	}

	// 4列すべて数値の行だけを使う（添字を回答者間で揃える）
	for i, row := range rows[1:] {
		values := make([]float64, len(cols))
		ok := true
		for k, c := range cols {
			v, err := parseNumber(cell(row, c.idx))
			if err != nil {
				ok = false
				break
			}
			values[k] = v
		}
		if !ok {
			l.logger.Debug("価格を解析できない行をスキップします", zap.Int("row", i+2))
			continue
		}
		for k, c := range cols {
			*c.dst = append(*c.dst, values[k])
		}
	}
	return input, nil
}

// LoadMaxDiff MaxDiff回答を読み込む
func (l *DatasetLoader) LoadMaxDiff(filename string, r io.Reader) ([]models.MaxDiffResponse, error) {
	if formatOf(filename) == ".json" {
		var out []models.MaxDiffResponse
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, fmt.Errorf("JSONの解析に失敗: %w", err)
		}
		return out, nil
	}

	rows, err := readTable(filename, r)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &EmptyInputError{Operation: "LoadMaxDiff"}
	}

	header := rows[0]
	qIdx := findColumn(header, "question_id", "question")
	mostIdx := findColumn(header, "most_important", "most", "best")
	leastIdx := findColumn(header, "least_important", "least", "worst")
	idIdx := findColumn(header, "respondent_id", "respondent")
	timeIdx := findColumn(header, "response_time_ms", "response_time")
	if mostIdx < 0 || leastIdx < 0 {
		return nil, fmt.Errorf("%w: most_important / least_important", ErrMissingColumn)
	}

	out := make([]models.MaxDiffResponse, 0, len(rows)-1)
	for _, row := range rows[1:] {
		resp := models.MaxDiffResponse{
			QuestionID:     cell(row, qIdx),
			MostImportant:  cell(row, mostIdx),
			LeastImportant: cell(row, leastIdx),
			RespondentID:   cell(row, idIdx),
		}
		if v, err := parseNumber(cell(row, timeIdx)); err == nil {
			resp.ResponseTimeMs = v
		}
		out = append(out, resp)
	}
	return out, nil
}

// LoadKano Kano回答を読み込む
func (l *DatasetLoader) LoadKano(filename string, r io.Reader) ([]models.KanoResponse, error) {
	if formatOf(filename) == ".json" {
		var out []models.KanoResponse
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, fmt.Errorf("JSONの解析に失敗: %w", err)
		}
		return out, nil
	}

	rows, err := readTable(filename, r)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &EmptyInputError{Operation: "LoadKano"}
	}

	header := rows[0]
	featureIdx := findColumn(header, "feature", "特徴")
	funcIdx := findColumn(header, "functional_response", "functional")
	dysIdx := findColumn(header, "dysfunctional_response", "dysfunctional")
	idIdx := findColumn(header, "respondent_id", "respondent")
	if featureIdx < 0 || funcIdx < 0 || dysIdx < 0 {
		return nil, fmt.Errorf("%w: feature / functional_response / dysfunctional_response", ErrMissingColumn)
	}

	out := make([]models.KanoResponse, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, models.KanoResponse{
			Feature:               cell(row, featureIdx),
			FunctionalResponse:    models.KanoAnswer(strings.ToLower(cell(row, funcIdx))),
			DysfunctionalResponse: models.KanoAnswer(strings.ToLower(cell(row, dysIdx))),
			RespondentID:          cell(row, idIdx),
		})
	}
	return out, nil
}

// LoadStudy 4手法分をまとめたJSONを読み込む
func (l *DatasetLoader) LoadStudy(r io.Reader) (models.StudyInput, error) {
	var input models.StudyInput
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return input, fmt.Errorf("JSONの解析に失敗: %w", err)
	}
	return input, nil
}
