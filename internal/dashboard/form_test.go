package dashboard

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"
)

var formKinds = map[string]filter.Kind{
	"area_of_interest": filter.KindCategorical,
	"firing_rate":      filter.KindNumeric,
	"session_date":     filter.KindDatetime,
	"h2o":              filter.KindText,
}

func TestApplyFilterFormCategorical(t *testing.T) {
	state := domain.NewFilterState()
	applyFilterForm(&state, url.Values{
		"control":               {"area_of_interest"},
		"opts.area_of_interest": {"3"},
		"sel.area_of_interest":  {"ALM"},
	}, formKinds)
	assert.Equal(t, []string{"ALM"}, state.Selections["area_of_interest"])

	applyFilterForm(&state, url.Values{
		"control":               {"area_of_interest"},
		"opts.area_of_interest": {"1"},
		"sel.area_of_interest":  {"ALM"},
	}, formKinds)
	_, stored := state.Selections["area_of_interest"]
	assert.False(t, stored, "selecting every option resets the control")

	applyFilterForm(&state, url.Values{
		"control":               {"area_of_interest"},
		"opts.area_of_interest": {"3"},
	}, formKinds)
	assert.Equal(t, []string{}, state.Selections["area_of_interest"], "an empty selection filters everything out")
}

func TestApplyFilterFormNumeric(t *testing.T) {
	state := domain.NewFilterState()
	form := url.Values{
		"control":            {"firing_rate"},
		"lo.firing_rate":     {"5"},
		"hi.firing_rate":     {"2"},
		"min.firing_rate":    {"0"},
		"max.firing_rate":    {"10"},
		"logwas.firing_rate": {"0"},
	}
	applyFilterForm(&state, form, formKinds)
	assert.Equal(t, domain.Range{Low: 2, High: 5}, state.Ranges["firing_rate"])

	form.Set("log.firing_rate", "1")
	applyFilterForm(&state, form, formKinds)
	assert.True(t, state.Log["firing_rate"])
	_, stored := state.Ranges["firing_rate"]
	assert.False(t, stored, "toggling log drops the range on the old scale")

	form.Set("logwas.firing_rate", "1")
	form.Set("lo.firing_rate", "0")
	form.Set("hi.firing_rate", "10")
	applyFilterForm(&state, form, formKinds)
	_, stored = state.Ranges["firing_rate"]
	assert.False(t, stored, "a full span range is the default")
	assert.True(t, state.Log["firing_rate"])
}

func TestApplyFilterFormKeepsUntouchedBound(t *testing.T) {
	rates := make([]any, 0, 41)
	for i := 0; i < 40; i++ {
		rates = append(rates, float64(i)+0.1234567)
	}
	rates = append(rates, 1234.5642)
	table, err := domain.NewTable(domain.Column{Name: "firing_rate", Type: domain.FieldTypeFloat, Values: rates})
	require.NoError(t, err)

	for name, format := range map[string]func(float64) string{
		"exact":   formatExact,
		"rounded": formatNumber,
	} {
		t.Run(name, func(t *testing.T) {
			state := domain.FilterState{Columns: []string{"firing_rate"}}
			result, err := filter.Apply(table, state)
			require.NoError(t, err)
			control := result.Controls[0]
			require.NotNil(t, control.Range)

			applyFilterForm(&state, url.Values{
				"control":            {"firing_rate"},
				"lo.firing_rate":     {"10"},
				"hi.firing_rate":     {format(control.Range.High)},
				"min.firing_rate":    {format(control.Min)},
				"max.firing_rate":    {format(control.Max)},
				"logwas.firing_rate": {"0"},
			}, formKinds)

			result, err = filter.Apply(table, state)
			require.NoError(t, err)
			assert.Equal(t, 31, result.Table.Len())
			col, _ := result.Table.Column("firing_rate")
			assert.Equal(t, 1234.5642, col.Values[len(col.Values)-1])
			require.NotNil(t, result.Controls[0].Range)
			assert.Equal(t, 1234.5642, result.Controls[0].Range.High)
		})
	}
}

func TestApplyFilterFormDatesTextAndColumns(t *testing.T) {
	state := domain.NewFilterState()
	applyFilterForm(&state, url.Values{
		"columns_submitted":  {"1"},
		"columns":            {"session_date", "h2o", "unknown"},
		"control":            {"session_date", "h2o"},
		"start.session_date": {"2021-03-01"},
		"end.session_date":   {""},
		"pat.h2o":            {"^SC0"},
	}, formKinds)

	assert.Equal(t, []string{"session_date", "h2o"}, state.Columns)
	dates := state.Dates["session_date"]
	require.NotNil(t, dates.Start)
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), *dates.Start)
	assert.Nil(t, dates.End)
	assert.False(t, dates.Complete())
	assert.Equal(t, "^SC0", state.Patterns["h2o"])

	applyFilterForm(&state, url.Values{"control": {"h2o"}, "pat.h2o": {""}}, formKinds)
	_, stored := state.Patterns["h2o"]
	assert.False(t, stored)

	applyFilterForm(&state, url.Values{"reset": {"1"}}, formKinds)
	assert.Equal(t, domain.NewFilterState(), state)
}

func TestParseUnitKey(t *testing.T) {
	key, err := parseUnitKey(url.Values{
		"subject_id":   {"12"},
		"h2o":          {"SC011"},
		"session_date": {"20210304"},
		"unit":         {"7"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), key.SubjectID)
	assert.Equal(t, "20210304", key.DateStamp())
	assert.Equal(t, int64(7), key.Unit)

	_, err = parseUnitKey(url.Values{"session_date": {"March"}})
	assert.EqualError(t, err, `invalid session_date "March"`)
}

func TestParseGallerySettings(t *testing.T) {
	settings := parseGallerySettings(url.Values{
		"source":    {"bogus"},
		"num_cols":  {"42"},
		"draw_type": {"psth", "psth", "raster"},
	}, []string{"drift metrics", "psth"})

	assert.Equal(t, domain.SelectSourceTable, settings.Source)
	assert.Equal(t, domain.MaxGalleryCols, settings.NumCols)
	assert.Equal(t, []string{"psth"}, settings.DrawTypes)
	assert.False(t, settings.AutoDraw)

	settings = parseGallerySettings(url.Values{"num_cols": {"0"}, "auto_draw": {"1"}}, nil)
	assert.Equal(t, domain.DefaultGalleryCols, settings.NumCols)
	assert.Equal(t, []string{}, settings.DrawTypes)
	assert.True(t, settings.AutoDraw)
}

func TestRenderMarkdownSanitizes(t *testing.T) {
	out := string(renderMarkdown("##### caption <script>alert(1)</script>"))
	assert.Contains(t, out, "<h5>")
	assert.NotContains(t, out, "<script>")
}
