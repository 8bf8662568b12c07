package services

import (
	"fmt"
	"strings"
	"testing"

	"market-insights-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const responsesCSV = `respondent_id,age_band,location_class,motivations,concerns,preferred_channel,purchase_intent,price_acceptance,brand_fit,benefit_ranking
r1,25-34,Urban,health; taste,price,online,72,60,7,taste>price>health
r2,35-44,Rural,,,retail,41.5,55,6,
r3,25-34,Urban,health,,online,not-a-number,50,5,
`

func TestLoadResponsesCSV(t *testing.T) {
	l := NewDatasetLoader(zap.NewNop())

	got, err := l.LoadResponses("survey.csv", strings.NewReader(responsesCSV))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "r1", got[0].RespondentID)
	assert.Equal(t, "25-34", got[0].Demographics.AgeBand)
	assert.Equal(t, "Urban", got[0].Demographics.LocationClass)
	assert.Equal(t, []string{"health", "taste"}, got[0].Psychographics.Motivations)
	assert.Equal(t, []string{"price"}, got[0].Psychographics.Concerns)
	assert.Equal(t, 72.0, got[0].PurchaseIntent)
	assert.Equal(t, 7.0, got[0].BrandFit)
	assert.Equal(t, []string{"taste", "price", "health"}, got[0].BenefitRanking)

	assert.Equal(t, 41.5, got[1].PurchaseIntent)
	assert.Nil(t, got[1].Psychographics.Motivations)
}

func TestLoadResponsesXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"回答者ID", "居住地区分", "購買意向"},
		{"a", "Urban", 80},
		{"b", "Suburban", 40},
	}
	for i, row := range rows {
		require.NoError(t, f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	l := NewDatasetLoader(zap.NewNop())
	got, err := l.LoadResponses("survey.xlsx", buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Urban", got[0].Demographics.LocationClass)
	assert.Equal(t, 40.0, got[1].PurchaseIntent)
}

func TestLoadResponsesErrors(t *testing.T) {
	l := NewDatasetLoader(zap.NewNop())

	_, err := l.LoadResponses("survey.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.LoadResponses("survey.csv", strings.NewReader("respondent_id,age_band\nr1,25-34\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = l.LoadResponses("survey.csv", strings.NewReader("purchase_intent\n"))
	assert.True(t, IsEmptyInput(err))
}

func TestLoadResponsesJSON(t *testing.T) {
	l := NewDatasetLoader(zap.NewNop())

	got, err := l.LoadResponses("survey.json", strings.NewReader(`[{"respondent_id":"x","demographics":{"location_class":"Urban"},"purchase_intent":66}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Urban", got[0].Demographics.LocationClass)
	assert.Equal(t, 66.0, got[0].PurchaseIntent)
}

func TestLoadPricingCSV(t *testing.T) {
	l := NewDatasetLoader(zap.NewNop())
	data := "too_expensive,expensive_but_consider,good_value,too_cheap\n50,35,20,10\n60,40,,15\n70,45,30,20\n"

	got, err := l.LoadPricing("pricing.csv", strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 70}, got.TooExpensive)
	assert.Equal(t, []float64{35, 45}, got.ExpensiveButConsider)
	assert.Equal(t, []float64{20, 30}, got.GoodValue)
	assert.Equal(t, []float64{10, 20}, got.TooCheap)

	_, err = l.LoadPricing("pricing.csv", strings.NewReader("too_expensive,good_value\n1,2\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadMaxDiffAndKanoCSV(t *testing.T) {
	l := NewDatasetLoader(zap.NewNop())

	md, err := l.LoadMaxDiff("md.csv", strings.NewReader("question_id,most_important,least_important,respondent_id,response_time_ms\nq1,price,design,r1,3200\n"))
	require.NoError(t, err)
	require.Len(t, md, 1)
	assert.Equal(t, models.MaxDiffResponse{QuestionID: "q1", MostImportant: "price", LeastImportant: "design", RespondentID: "r1", ResponseTimeMs: 3200}, md[0])

	kano, err := l.LoadKano("kano.csv", strings.NewReader("feature,functional_response,dysfunctional_response,respondent_id\nbattery,Expect_It,neutral,r1\n"))
	require.NoError(t, err)
	require.Len(t, kano, 1)
	assert.Equal(t, models.KanoExpectIt, kano[0].FunctionalResponse)
	assert.Equal(t, models.KanoNeutral, kano[0].DysfunctionalResponse)
}

func TestLoadStudy(t *testing.T) {
	l := NewDatasetLoader(zap.NewNop())

	got, err := l.LoadStudy(strings.NewReader(`{"pricing":{"too_expensive":[50],"expensive_but_consider":[40],"good_value":[30],"too_cheap":[10]},"maxdiff_features":["a","b"]}`))
	require.NoError(t, err)
	require.NotNil(t, got.Pricing)
	assert.Equal(t, []float64{50}, got.Pricing.TooExpensive)
	assert.Equal(t, []string{"a", "b"}, got.MaxDiffFeatures)
}
