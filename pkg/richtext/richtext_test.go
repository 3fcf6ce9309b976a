package richtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLRendersMarkdownAndDropsRawHTML(t *testing.T) {
	out, err := New().HTML("**Hello** parents\n<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>Hello</strong>")
	assert.NotContains(t, out, "<script>")
}

func TestPersonalize(t *testing.T) {
	got := Personalize("Hi {{ first_name }}, {{Course}} starts soon. {{missing}}", map[string]string{
		"first_name": "Sam",
		"course":     "Easter Camp",
	})
	assert.Equal(t, "Hi Sam, Easter Camp starts soon. ", got)
}

func TestMergeFields(t *testing.T) {
	assert.Equal(t, []string{"first_name", "course"}, MergeFields("{{first_name}} {{course}} {{FIRST_NAME}}"))
}
