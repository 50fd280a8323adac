package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontMatter(t *testing.T) {
	data, body, err := ParseFrontMatter([]byte(samplePost))
	require.NoError(t, err)

	assert.Equal(t, PostData{
		Author:      "Ada",
		Title:       "Hello <World>",
		Tags:        []string{"go", "concurrency"},
		Date:        "2024-03-01",
		Description: "A first post",
	}, data)
	assert.Equal(t, "# Heading\n\nSome *markdown* text.\n", string(body))
}

func TestParseFrontMatterCRLF(t *testing.T) {
	src := "---\r\nauthor: A\r\ntitle: T\r\ndate: 2024-01-01\r\ndescription: D\r\n---\r\nbody\r\n"

	data, body, err := ParseFrontMatter([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "T", data.Title)
	assert.Empty(t, data.Tags)
	assert.Equal(t, "body\r\n", string(body))
}

func TestParseFrontMatterErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no fence", "# just markdown", "missing front matter"},
		{"empty", "", "missing front matter"},
		{"unterminated", "---\ntitle: x\n", "unterminated front matter"},
		{"bad yaml", "---\ntitle: [unclosed\n---\n", "invalid front matter"},
		{"missing fields", "---\ntitle: x\n---\n", "front matter missing author, date, description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseFrontMatter([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTagSet(t *testing.T) {
	previews := []Preview{
		{Tags: []string{"go", "web"}},
		{Tags: []string{"web", " rust ", ""}},
		{Tags: nil},
	}

	assert.Equal(t, []string{"go", "rust", "web"}, TagSet(previews))
	assert.Empty(t, TagSet(nil))
}

func TestSortNewestFirst(t *testing.T) {
	previews := []Preview{
		{ID: 1, Date: "2023-01-01"},
		{ID: 2, Date: "not a date"},
		{ID: 3, Date: "March 5, 2024"},
		{ID: 4, Date: "2024-03-05"},
		{ID: 5, Date: "2023-06-30T10:00:00Z"},
	}

	SortNewestFirst(previews)

	ids := make([]int, 0, len(previews))
	for _, p := range previews {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int{3, 4, 5, 1, 2}, ids)
}

func TestPostPreview(t *testing.T) {
	p := &Post{ID: 7, Name: "hello.md", Stem: "hello", Data: PostData{Title: "Hello"}}

	preview := p.Preview()
	assert.Equal(t, 7, preview.ID)
	assert.Equal(t, "hello.html", preview.Resource)
	assert.NotNil(t, preview.Tags)
}
