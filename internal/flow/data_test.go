package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/nodeflow/internal/apperr"
)

func TestNewData_MatchesTemplates(t *testing.T) {
	for _, tpl := range Templates() {
		d, ok := NewData(tpl.Type)
		require.True(t, ok, tpl.Type)
		assert.Equal(t, tpl.Type, d.Type())

		fields := d.Fields()
		assert.Len(t, fields, len(tpl.Fields), tpl.Type)
		for _, f := range tpl.Fields {
			assert.Contains(t, fields, f.Name)
			require.NoError(t, d.SetField(f.Name, "v-"+f.Name))
		}
		for name, v := range d.Fields() {
			assert.Equal(t, "v-"+name, v)
		}
	}
}

func TestDataFromFields(t *testing.T) {
	d, err := DataFromFields(TypeModel, map[string]string{"modelName": "llama-3", "temperature": "0.2"})
	require.NoError(t, err)
	m, ok := d.(*ModelData)
	require.True(t, ok)
	assert.Equal(t, "llama-3", m.ModelName)
	assert.Equal(t, "0.2", m.Temperature)
	assert.Empty(t, m.APIKey)

	_, err = DataFromFields(TypeModel, map[string]string{"color": "red"})
	assert.ErrorIs(t, err, apperr.ErrUnknownField)

	_, err = DataFromFields("bogusNode", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTemplates_Sorted(t *testing.T) {
	tpls := Templates()
	require.Len(t, tpls, 5)
	for i := 1; i < len(tpls); i++ {
		assert.Less(t, string(tpls[i-1].Type), string(tpls[i].Type))
	}

	tpl, ok := Lookup(TypePrompt)
	require.True(t, ok)
	h, ok := tpl.Input("input-user_input")
	require.True(t, ok)
	assert.Equal(t, "user_input", h.FieldName)
	assert.Equal(t, HandleTarget, h.Direction)
	_, ok = tpl.Output("input-user_input")
	assert.False(t, ok)
}
