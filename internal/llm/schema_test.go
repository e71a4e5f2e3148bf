package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmatch/core/internal/domain"
)

func TestCleanJSONResponse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", "Sure, here you go:\n{\"a\":1}\nLet me know if you need more.", `{"a":1}`},
		{"trailing comma object", `{"a":1,}`, `{"a":1}`},
		{"trailing comma array", `[1,2,]`, `[1,2]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanJSONResponse(tc.in))
		})
	}
}

func TestParseStructured_RequiredFieldTypes(t *testing.T) {
	s := Shape{Fields: []FieldSpec{
		{Name: "skills", Kind: FieldStringList, Required: true},
		{Name: "years", Kind: FieldInt, Required: false},
	}}

	obj, err := parseStructured("op", `{"skills":["Go","Rust"],"years":5}`, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Rust"}, StringListField(obj, "skills"))

	_, err = parseStructured("op", `{"years":5}`, s)
	require.Error(t, err)
	assert.True(t, IsParse(err))

	_, err = parseStructured("op", `{"skills":"Go"}`, s)
	require.Error(t, err)
	assert.True(t, IsParse(err))

	_, err = parseStructured("op", `not json`, s)
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestNormalizeSeniority(t *testing.T) {
	cases := map[string]domain.Seniority{
		"Junior":      domain.SeniorityJunior,
		"entry-level": domain.SeniorityJunior,
		"Mid":         domain.SeniorityMid,
		"associate":   domain.SeniorityMid,
		"Senior":      domain.SenioritySenior,
		"sr":          domain.SenioritySenior,
		"Staff":       domain.SeniorityLead,
		"":            domain.SeniorityMid,
		"wizard":      domain.SeniorityMid,
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeSeniority(in), "input %q", in)
	}
}

func TestParseStructured_NormalizesSeniorityField(t *testing.T) {
	s := Shape{Fields: []FieldSpec{{Name: "seniority", Kind: FieldString, Required: true}}}
	obj, err := parseStructured("op", `{"seniority":"staff engineer... well, staff"}`, s)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SeniorityMid), StringField(obj, "seniority"))

	obj, err = parseStructured("op", `{"seniority":"Senior"}`, s)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SenioritySenior), StringField(obj, "seniority"))
}
