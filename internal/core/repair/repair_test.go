package repair

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plays3000/ai-server/internal/models"
)

func TestJSONArray_ValidInputIsUnchanged(t *testing.T) {
	inputs := []string{
		`[]`,
		`[1,2,3]`,
		`[{"key":"name","cell":"B1","desc":"person name"}]`,
		`[{"a":"x, y ] }"},{"b":[1,[2]]}]`,
	}
	for _, in := range inputs {
		var want []any
		require.NoError(t, json.Unmarshal([]byte(in), &want))
		assert.Equal(t, want, JSONArray(in), in)
		assert.Equal(t, in, repairText(in, '[', ']'))
	}
}

func TestJSONObject_ValidInputIsUnchanged(t *testing.T) {
	in := `{"name":"Jane","amount":12000,"items":["a","b"]}`
	var want map[string]any
	require.NoError(t, json.Unmarshal([]byte(in), &want))
	assert.Equal(t, want, JSONObject(in))
}

func TestJSONArray_StripsFencesAndProse(t *testing.T) {
	in := "Here are the fields:\n```json\n[{\"key\":\"name\",\"cell\":\"B1\"}]\n```\nLet me know."
	got := JSONArray(in)
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].(map[string]any)["cell"])
}

func TestJSONArray_TruncatedKeepsCompleteElements(t *testing.T) {
	full := `[{"key":"a","cell":"A1"},{"key":"b","cell":"B2"},{"key":"c","cell":"C3"}]`
	var whole []any
	require.NoError(t, json.Unmarshal([]byte(full), &whole))

	// Cut after every byte past the first complete element.
	firstEnd := len(`[{"key":"a","cell":"A1"}`)
	for cut := firstEnd; cut < len(full); cut++ {
		got := JSONArray(full[:cut])
		require.NotEmpty(t, got, "cut at %d: %q", cut, full[:cut])
		assert.Equal(t, whole[:len(got)], got, "cut at %d must be a prefix", cut)
	}
}

func TestJSONArray_TruncatedInsideEscapedString(t *testing.T) {
	in := `[{"key":"a","desc":"say \"hi\", then"},{"key":"b","desc":"unterminated \"quo`
	got := JSONArray(in)
	require.Len(t, got, 1)
	assert.Equal(t, `say "hi", then`, got[0].(map[string]any)["desc"])
}

func TestJSONObject_TruncatedKeepsCompletePairs(t *testing.T) {
	got := JSONObject(`{"name":"Jane","dept":"Sales","note":"half writ`)
	assert.Equal(t, map[string]any{"name": "Jane", "dept": "Sales"}, got)
}

func TestJSONArray_MissingClosingBracket(t *testing.T) {
	assert.Equal(t, []any{float64(1), float64(2)}, JSONArray(`[1, 2`))
}

func TestRepairText_Idempotent(t *testing.T) {
	inputs := []string{
		`[{"key":"a","cell":"A1"},{"key":"b","ce`,
		"```json\n[1, 2, 3]\n```",
		`[1, 2`,
		`noise [ {"k":"v"} ] trailing`,
		`no json here`,
	}
	for _, in := range inputs {
		once := repairText(in, '[', ']')
		assert.Equal(t, once, repairText(once, '[', ']'), in)
	}

	obj := repairText(`{"name":"Jane","dept":"Sa`, '{', '}')
	assert.Equal(t, obj, repairText(obj, '{', '}'))
}

func TestRepair_Garbage(t *testing.T) {
	assert.Equal(t, []any{}, JSONArray("I cannot help with that"))
	assert.Equal(t, []any{}, JSONArray(`[{"key":`))
	assert.Equal(t, map[string]any{}, JSONObject(""))
	assert.Equal(t, map[string]any{}, JSONObject(`[1,2]`))
	assert.Equal(t, []models.FieldMapping{}, Mappings("nope"))
}

func TestMappings_AcceptsLooseShapes(t *testing.T) {
	in := "```json\n" + `[
		{"key":"name","cell":"b1","desc":"person name"},
		{"key":"total","cell":"C7","description":"sum"},
		"stray",
		{"key":7,"cell":"D2","desc":true},
		{"key":"cut","cell":"E` + "\n```"

	got := Mappings(in)
	assert.Equal(t, []models.FieldMapping{
		{Key: "name", Cell: "B1", Description: "person name"},
		{Key: "total", Cell: "C7", Description: "sum"},
		{Key: "7", Cell: "D2", Description: "true"},
	}, got)
}

func TestValue(t *testing.T) {
	assert.Equal(t, int64(1000000), Value(float64(1e6)))
	assert.Equal(t, 1.5, Value(1.5))
	assert.Equal(t, "x", Value("x"))
	assert.Nil(t, Value(nil))
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "", StringValue(nil))
	assert.Equal(t, "", StringValue(json.RawMessage("null")))
	assert.Equal(t, "abc", StringValue(json.RawMessage(`"abc"`)))
	assert.Equal(t, "42", StringValue(json.RawMessage(`42`)))
	assert.Equal(t, "0.5", StringValue(json.RawMessage(`0.5`)))
	assert.Equal(t, "false", StringValue(json.RawMessage(`false`)))
}
