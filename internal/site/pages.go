package site

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// page holds everything the shared layout needs.
type page struct {
	SiteTitle   string
	Title       string
	Author      string
	Description string
	Tags        []string
	Previews    []Preview
	Date        string
	Body        templ.Component
}

// htmlWriter collects the first write error so components can emit markup
// without checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err == nil {
		_, hw.err = io.WriteString(hw.w, s)
	}
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) rawf(format string, args ...interface{}) {
	hw.raw(fmt.Sprintf(format, args...))
}

func (hw *htmlWriter) render(ctx context.Context, c templ.Component) {
	if hw.err == nil && c != nil {
		hw.err = c.Render(ctx, hw.w)
	}
}

// layout renders the document shell: head metadata, the navbar with the
// tag filter, the page body and the footer.
func layout(p page) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		hw.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		hw.raw("<title>")
		hw.text(p.Title)
		hw.raw("</title>")
		if p.Author != "" {
			hw.raw("<meta name=\"author\" content=\"")
			hw.text(p.Author)
			hw.raw("\">")
		}
		if p.Description != "" {
			hw.raw("<meta name=\"description\" content=\"")
			hw.text(p.Description)
			hw.raw("\">")
		}
		hw.raw("<link rel=\"stylesheet\" type=\"text/css\" href=\"/assets/styles.css\">")
		hw.raw("</head><body id=\"top\"><header>")
		hw.render(ctx, navbar(p.SiteTitle, p.Tags))
		hw.raw("</header><div class=\"results-div\"></div><main>")
		hw.render(ctx, p.Body)
		hw.raw("</main>")
		hw.render(ctx, footer(p.Date))
		hw.render(ctx, previewScript(p.Previews))
		hw.raw("<script src=\"/assets/searchbar.js\"></script>")
		hw.raw("</body></html>")

		return hw.err
	})
}

func navbar(siteTitle string, tags []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		caser := cases.Title(language.English)
		hw.raw("<nav class=\"navbar\"><div class=\"container\">")
		hw.raw("<a href=\"/\" class=\"navbar-brand\">")
		hw.text(siteTitle)
		hw.raw("</a><ul class=\"navbar-nav\">")
		hw.raw("<li class=\"nav-item\"><a href=\"/\">Home</a></li>")
		hw.raw("</ul><form class=\"navbar-search\" id=\"search-form\">")
		hw.raw("<input class=\"form-control\" type=\"search\" placeholder=\"Search\" aria-label=\"Search\" id=\"search-input\">")
		hw.raw("</form></div>")
		hw.raw("<div class=\"tag-filter\" id=\"tag-filter\"><p>Filter by Tag:</p><form id=\"tag-form\">")
		for _, tag := range tags {
			hw.raw("<label class=\"tag-box\"><input type=\"checkbox\" name=\"tags\" value=\"")
			hw.text(tag)
			hw.raw("\">")
			hw.text(caser.String(tag))
			hw.raw("</label>")
		}
		hw.raw("</form></div></nav>")

		return hw.err
	})
}

func footer(date string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw("<footer>")
		if date != "" {
			hw.raw("<p>Published on: ")
			hw.text(date)
			hw.raw("</p>")
		}
		hw.raw("<a href=\"#top\">Back to top</a></footer>")

		return hw.err
	})
}

// previewScript exposes the previews to the search bar script. json.Marshal
// escapes <, > and &, so the payload cannot close the script element.
func previewScript(previews []Preview) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if previews == nil {
			previews = []Preview{}
		}
		payload, err := json.Marshal(previews)
		if err != nil {
			return err
		}
		hw := &htmlWriter{w: w}
		hw.raw("<script>const previews = ")
		hw.raw(string(payload))
		hw.raw(";</script>")

		return hw.err
	})
}

// PostPage renders a single post. body is the post's already rendered HTML.
func PostPage(siteTitle string, post *Post, body string, previews []Preview, tags []string) templ.Component {
	return layout(page{
		SiteTitle:   siteTitle,
		Title:       post.Data.Title,
		Author:      post.Data.Author,
		Description: post.Data.Description,
		Tags:        tags,
		Previews:    previews,
		Date:        post.Data.Date,
		Body: templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			hw := &htmlWriter{w: w}
			hw.raw("<article><h1>")
			hw.text(post.Data.Title)
			hw.raw("</h1>")
			if len(post.Data.Tags) > 0 {
				hw.raw("<p class=\"tags\">Tags: ")
				hw.text(strings.Join(post.Data.Tags, ", "))
				hw.raw("</p>")
			}
			hw.render(ctx, templ.Raw(body))
			hw.raw("</article>")

			return hw.err
		}),
	})
}

// IndexPage renders the home document listing previews in the given order.
func IndexPage(siteTitle string, previews []Preview, tags []string) templ.Component {
	return layout(page{
		SiteTitle: siteTitle,
		Title:     siteTitle,
		Tags:      tags,
		Previews:  previews,
		Body: templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			hw := &htmlWriter{w: w}
			hw.raw("<section class=\"posts\">")
			if len(previews) == 0 {
				hw.raw("<p>No posts yet.</p>")
			}
			for _, p := range previews {
				hw.rawf("<div class=\"result-item\" data-id=\"%d\"><h3><a href=\"/", p.ID)
				hw.text(p.Resource)
				hw.raw("\">")
				hw.text(p.Title)
				hw.raw("</a></h3><p>")
				hw.text(p.Description)
				hw.raw("</p><p class=\"date\">")
				hw.text(p.Date)
				hw.raw("</p>")
				if len(p.Tags) > 0 {
					hw.raw("<p class=\"tags\">Tags: ")
					hw.text(strings.Join(p.Tags, ", "))
					hw.raw("</p>")
				}
				hw.raw("</div>")
			}
			hw.raw("</section>")

			return hw.err
		}),
	})
}
