package site

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PostData is the YAML front matter of a post.
type PostData struct {
	Author      string   `yaml:"author"`
	Title       string   `yaml:"title"`
	Tags        []string `yaml:"tags"`
	Date        string   `yaml:"date"`
	Description string   `yaml:"description"`
}

// Post is one parsed markdown file.
type Post struct {
	ID   int
	Name string
	Stem string
	Data PostData
	Body []byte
}

// Preview is the lightweight summary of a post listed on the home page and
// in posts.json.
type Preview struct {
	ID          int      `json:"id"`
	Resource    string   `json:"resource"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Date        string   `json:"date"`
}

// Preview returns the summary of p.
func (p *Post) Preview() Preview {
	tags := p.Data.Tags
	if tags == nil {
		tags = []string{}
	}

	return Preview{
		ID:          p.ID,
		Resource:    p.Stem + ".html",
		Title:       p.Data.Title,
		Description: p.Data.Description,
		Tags:        tags,
		Date:        p.Data.Date,
	}
}

var fence = []byte("---")

// ParseFrontMatter splits a markdown document into its front matter and
// body. The document must open with a "---" line and the front matter ends
// at the next "---" line. Author, title, date and description are required;
// tags may be omitted.
func ParseFrontMatter(src []byte) (PostData, []byte, error) {
	var data PostData

	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	first, rest, ok := cutLine(src)
	if !ok || !bytes.Equal(bytes.TrimSpace(first), fence) {
		return data, nil, fmt.Errorf("missing front matter")
	}

	var header []byte
	for {
		line, next, more := cutLine(rest)
		if bytes.Equal(bytes.TrimSpace(line), fence) {
			rest = next
			break
		}
		if !more {
			return data, nil, fmt.Errorf("unterminated front matter")
		}
		header = append(header, line...)
		header = append(header, '\n')
		rest = next
	}

	if err := yaml.Unmarshal(header, &data); err != nil {
		return data, nil, fmt.Errorf("invalid front matter: %w", err)
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"author", data.Author},
		{"title", data.Title},
		{"date", data.Date},
		{"description", data.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return data, nil, fmt.Errorf("front matter missing %s", strings.Join(missing, ", "))
	}

	return data, rest, nil
}

// cutLine returns the first line of b without its terminator, the remainder,
// and whether a terminator was found.
func cutLine(b []byte) ([]byte, []byte, bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}

	return bytes.TrimSuffix(b[:i], []byte("\r")), b[i+1:], true
}

// TagSet returns the deduplicated, sorted tags of all previews.
func TagSet(previews []Preview) []string {
	seen := make(map[string]struct{})
	for _, p := range previews {
		for _, tag := range p.Tags {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// SortNewestFirst orders previews by date, newest first. Undated previews
// sort last; ties keep id order.
func SortNewestFirst(previews []Preview) {
	sort.SliceStable(previews, func(i, j int) bool {
		ti, okI := parseDate(previews[i].Date)
		tj, okJ := parseDate(previews[j].Date)
		switch {
		case okI && okJ && !ti.Equal(tj):
			return ti.After(tj)
		case okI != okJ:
			return okI
		default:
			return previews[i].ID < previews[j].ID
		}
	})
}
