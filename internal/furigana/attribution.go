package furigana

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxAttributedHosts = 3
	attributionStyle   = "margin-top:40px;padding-top:20px;border-top:1px solid #e7e5e4;font-size:0.75rem;color:#a8a29e;"
	linkStyle          = "color:#a8a29e;text-decoration:underline;margin-right:10px;"
)

// GenericAttribution credits the model when no web source was used.
const GenericAttribution = "出典: Gemini AI Internal Knowledge"

// Attribute appends a source block to markup. With sources it links the
// first three distinct hostnames; unparsable URLs are skipped. Without any
// usable source it appends the generic attribution line.
func Attribute(markup string, sources []string) string {
	hosts := Hosts(sources)

	var b strings.Builder
	b.WriteString(markup)
	b.WriteString(`<div style="` + attributionStyle + `">`)
	if len(hosts) == 0 {
		b.WriteString("<p>" + GenericAttribution + "</p>")
	} else {
		b.WriteString("<p>出典 (Search):</p>")
		for _, h := range hosts {
			b.WriteString(`<a href="` + html.EscapeString(h.URL) + `" target="_blank" style="` + linkStyle + `">`)
			b.WriteString(html.EscapeString(h.Name))
			b.WriteString("</a>")
		}
	}
	b.WriteString("</div>")
	return b.String()
}

// Host is an attributed source site.
type Host struct {
	Name string // hostname
	URL  string // first source URL seen on that host
}

// Hosts returns up to three distinct hosts from sources, in source order.
func Hosts(sources []string) []Host {
	var hosts []Host
	seen := make(map[string]bool)
	for _, s := range sources {
		u, err := url.Parse(s)
		if err != nil || u.Hostname() == "" {
			continue
		}
		name := u.Hostname()
		if seen[name] {
			continue
		}
		seen[name] = true
		hosts = append(hosts, Host{Name: name, URL: s})
		if len(hosts) == maxAttributedHosts {
			break
		}
	}
	return hosts
}
