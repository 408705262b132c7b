package types

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsKeyOrder(t *testing.T) {
	line := `{"zeta":1,"code":"x < y && z","alpha":[1,2],"code2":null}`
	rec := NewRecord()
	require.NoError(t, json.Unmarshal([]byte(line), rec))
	assert.Equal(t, []string{"zeta", "code", "alpha", "code2"}, rec.Keys())

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, line, string(out))

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(rec))
	assert.Equal(t, line+"\n", buf.String())
}

func TestRecordSetReplacesInPlace(t *testing.T) {
	rec := NewRecord()
	require.NoError(t, rec.Set("a", 1))
	require.NoError(t, rec.Set("b", "<tag>"))
	require.NoError(t, rec.Set("a", "again"))
	out, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":"again","b":"<tag>"}`, string(out))
}

func TestRecordString(t *testing.T) {
	rec := NewRecord()
	require.NoError(t, json.Unmarshal(
		[]byte(`{"code":"print(1)","nil":null,"num":5}`), rec))

	code, ok, err := rec.String("code")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "print(1)", code)

	_, ok, err = rec.String("nil")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = rec.String("missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = rec.String("num")
	assert.Error(t, err)
}

func TestRecordRejectsNonObject(t *testing.T) {
	rec := NewRecord()
	err := json.Unmarshal([]byte(`[1,2]`), rec)
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestOutputRecordEncoding(t *testing.T) {
	rec := NewOutputRecord("x = 1", "<mstart> x = 1 <mend>",
		[]string{"x = 1"}, []string{"<mstart>", "x", "=", "1", "<mend>"},
		[]int{30522, 1060, 1027, 1015, 30523}, []int{0, 4})
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(rec))
	assert.Equal(t, `{"original_statement":"x = 1",`+
		`"statement_with_mask":"<mstart> x = 1 <mend>",`+
		`"mask_info":["x = 1"],`+
		`"tokens":["<mstart>","x","=","1","<mend>"],`+
		`"token_ids":[30522,1060,1027,1015,30523],`+
		`"mask_token_positions":[0,4]}`+"\n", buf.String())
	assert.Equal(t, 1, rec.MarkerPairs())
}

func TestOutputRecordEmptySlices(t *testing.T) {
	out, err := json.Marshal(NewOutputRecord("a", "a", nil, nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, `{"original_statement":"a","statement_with_mask":"a",`+
		`"mask_info":[],"tokens":[],"token_ids":[],`+
		`"mask_token_positions":[]}`, string(out))
}

func TestRecordReencode(t *testing.T) {
	rec := NewRecord()
	require.NoError(t, json.Unmarshal([]byte(
		`{"code": "a \u003c b \u0026\u0026 c",  "n": 12345678901234567890,`+
			` "meta": {"z": 1, "a": [true, null]}}`), rec))
	require.NoError(t, rec.Reencode())

	out, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"code":"a < b && c","n":12345678901234567890,`+
		`"meta":{"a":[true,null],"z":1}}`, string(out))
	assert.Equal(t, []string{"code", "n", "meta"}, rec.Keys())
}
