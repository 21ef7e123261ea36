package schemas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseActionKind(t *testing.T) {
	tests := map[string]ActionKind{
		"":            ActionNone,
		"  Click ":    ActionClick,
		"website":     ActionRedirect,
		"tab-iterate": ActionTabIterate,
		"url_iterate": ActionURLIterate,
		"pdf":         ActionPDF,
		"teleport":    ActionUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseActionKind(in), "tag %q", in)
	}

	assert.True(t, ActionTabIterate.IsIterator())
	assert.True(t, ActionURLIterate.IsIterator())
	assert.False(t, ActionClick.IsIterator())
	assert.True(t, ActionTable.NeedsLocator())
	assert.False(t, ActionRedirect.NeedsLocator())
}

func TestWithDefaults(t *testing.T) {
	spec := ActionSpec{Action: ActionTable, Value: "#rates", OpenNewWindow: true, ExportFormat: " Excel "}.WithDefaults()

	assert.Equal(t, StrategyCSS, spec.By)
	assert.Equal(t, DefaultURL, spec.URL)
	assert.Equal(t, StrategyCSS, spec.WaitBy)
	assert.Equal(t, "#rates", spec.WaitValue)
	assert.Equal(t, DefaultTableName, spec.TableName)
	assert.Equal(t, DefaultLogMessage, spec.LogMessage)
	assert.Equal(t, DefaultMaxLabels, spec.MaxLabels)
	assert.True(t, spec.NewWindow)
	assert.Equal(t, "csv", spec.ExportFormat)
	assert.Equal(t, 20*time.Second, spec.TimeoutDuration())
	assert.Equal(t, 2*time.Second, spec.JitterCeiling())

	zero := 0.0
	assert.Zero(t, ActionSpec{Time: &zero}.JitterCeiling())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, ActionSpec{Action: ActionClick, WaitUntil: WaitClickable}.Validate())

	tests := map[string]ActionSpec{
		"unknown wait":        {Action: ActionClick, WaitUntil: "sometimes"},
		"url-iterate no urls": {Action: ActionURLIterate},
		"params without base": {Action: ActionURLIterate, URLs: []string{"https://a.test"}, Params: ParamList{{Name: "q", Values: []string{"1"}}}},
		"export format":       {Action: ActionTable, ExportFormat: "pdf"},
		"bad follow-up":       {Action: ActionTabIterate, FollowUp: []ActionSpec{{WaitUntil: "never"}}},
	}
	for name, spec := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, spec.Validate(), ErrInvalidSpec)
		})
	}

	t.Run("unknown wait carries its own sentinel", func(t *testing.T) {
		err := ActionSpec{Action: ActionClick, WaitUntil: "stale"}.Validate()
		assert.ErrorIs(t, err, ErrInvalidSpec)
		assert.ErrorIs(t, err, ErrUnsupportedCondition)

		err = ActionSpec{Action: ActionTabIterate, FollowUp: []ActionSpec{{WaitUntil: "never"}}}.Validate()
		assert.ErrorIs(t, err, ErrUnsupportedCondition)
	})
}

func TestBlockYAML(t *testing.T) {
	const doc = `
- accept_cookies
- action: Website
  url: https://first.test/rates
- action: url-iterate
  base_url: https://first.test/rates
  params:
    tenor: [1, 2]
    type: fd
- action: scrape
  value: .card
  scrape_fields:
    rate: .rate
    tenor: ".//td[1]|||xpath"
`
	var block Block
	require.NoError(t, yaml.Unmarshal([]byte(doc), &block))
	require.Len(t, block, 4)

	assert.Equal(t, "accept_cookies", block[0].Preset)
	assert.Nil(t, block[0].Action)

	require.NotNil(t, block[1].Action)
	assert.Equal(t, ActionRedirect, block[1].Action.Action)

	assert.Equal(t, ParamList{
		{Name: "tenor", Values: []string{"1", "2"}, List: true},
		{Name: "type", Values: []string{"fd"}},
	}, block[2].Action.Params)

	assert.Equal(t, FieldMap{{Name: "rate", Selector: ".rate"}, {Name: "tenor", Selector: ".//td[1]|||xpath"}}, block[3].Action.ScrapeFields)

	t.Run("rejects nested lists as steps", func(t *testing.T) {
		var bad Block
		err := yaml.Unmarshal([]byte("- [a, b]"), &bad)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	})
}

func TestResponseEntryMarkers(t *testing.T) {
	assert.True(t, ResponseEntry{Marker: MarkerSkip}.IsMarker())
	assert.False(t, ResponseEntry{Marker: MarkerError, Value: "boom"}.HasData())
	assert.False(t, ResponseEntry{}.HasData())
	assert.True(t, ResponseEntry{Value: "<table></table>"}.HasData())

	assert.False(t, DataPresent(nil))
	assert.False(t, DataPresent([]ResponseEntry{{Marker: MarkerError, Value: "boom"}, {Name: "empty"}}))
	assert.True(t, DataPresent([]ResponseEntry{{Marker: MarkerSkip, Value: "not_found"}, {Value: "7.10"}}))
}
