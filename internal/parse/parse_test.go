package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_DirectJSON(t *testing.T) {
	res := Parse(`{"reasoning": "the listing mentions a blind box", "classification": "toy"}`)

	assert.False(t, res.Degraded)
	assert.Equal(t, "the listing mentions a blind box", res.Reasoning)
	assert.Equal(t, "toy", res.Classification)
}

func TestParse_KeyAliases(t *testing.T) {
	t.Run("analysis and category", func(t *testing.T) {
		res := Parse(`{"Analysis": "A", "Category": "C"}`)
		assert.False(t, res.Degraded)
		assert.Equal(t, "A", res.Reasoning)
		assert.Equal(t, "C", res.Classification)
	})

	t.Run("thoughts and result", func(t *testing.T) {
		res := Parse(`{"Thoughts": "T", "Result": "R"}`)
		assert.False(t, res.Degraded)
		assert.Equal(t, "T", res.Reasoning)
		assert.Equal(t, "R", res.Classification)
	})

	t.Run("non-string values are stringified", func(t *testing.T) {
		res := Parse(`{"reasoning": "ok", "classification": 3}`)
		assert.False(t, res.Degraded)
		assert.Equal(t, "3", res.Classification)
	})
}

func TestParse_FencedCodeBlock(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"reasoning\": \"R\", \"classification\": \"C\"}\n```\nHope that helps."
	res := Parse(text)

	assert.False(t, res.Degraded)
	assert.Equal(t, "R", res.Reasoning)
	assert.Equal(t, "C", res.Classification)
}

func TestParse_EmbeddedInProse(t *testing.T) {
	text := `Sure! Based on the input I concluded {"reasoning": "has {braces} inside", "classification": "other"} as requested.`
	res := Parse(text)

	assert.False(t, res.Degraded)
	assert.Equal(t, "has {braces} inside", res.Reasoning)
	assert.Equal(t, "other", res.Classification)
}

func TestParse_LabeledLines(t *testing.T) {
	text := "Reasoning: the image shows a vinyl figure\nClassification: collectible"
	res := Parse(text)

	assert.False(t, res.Degraded)
	assert.Equal(t, "the image shows a vinyl figure", res.Reasoning)
	assert.Equal(t, "collectible", res.Classification)
}

func TestParse_DegradedFallback(t *testing.T) {
	text := "I am not able to produce structured output for this request."
	res := Parse(text)

	assert.True(t, res.Degraded)
	assert.Equal(t, text, res.Reasoning)
	assert.Empty(t, res.Classification)
}

func TestParse_NeverEmptyHanded(t *testing.T) {
	// a JSON object without any known keys falls through to degraded
	res := Parse(`{"foo": "bar"}`)

	assert.True(t, res.Degraded)
	assert.Equal(t, `{"foo": "bar"}`, res.Reasoning)
}

func TestFirstBalancedObject(t *testing.T) {
	t.Run("skips braces in strings", func(t *testing.T) {
		span, ok := firstBalancedObject(`x {"a": "}{"} y`)
		assert.True(t, ok)
		assert.Equal(t, `{"a": "}{"}`, span)
	})

	t.Run("unbalanced returns false", func(t *testing.T) {
		_, ok := firstBalancedObject(`{"a": 1`)
		assert.False(t, ok)
	})
}
