package board

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxCards bounds how many job cards are kept from one page.
	MaxCards = 20
	// MaxCardChars bounds the text kept per card.
	MaxCardChars = 1000
)

// cardSelectors are tried in order; the first that yields any card wins.
var cardSelectors = []string{
	".job_seen_beacon",
	"[data-testid='slider_item']",
	"li[class*='job'], article[class*='job']",
	"div[class*='job']",
}

// Elements whose text falls outside these bounds are fragments or whole-list
// containers rather than single postings.
const (
	minCardChars = 20
	maxCardSpan  = 3 * MaxCardChars
)

// Condense reduces rendered page HTML to the parts an extractor needs.
// It drops script, style and similar noise, then emits up to MaxCards job
// cards as "JOB n" blocks with their first link resolved against pageURL.
// Pages without recognisable cards fall back to the collapsed body text.
func Condense(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse page html: %w", err)
	}
	doc.Find("script, style, noscript, svg, iframe, head").Remove()

	base, _ := url.Parse(pageURL)

	cards := findCards(doc)
	if cards == nil {
		return cleanText(doc.Find("body").Text()), nil
	}

	var b strings.Builder
	n := 0
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		text := cleanText(card.Text())
		if text == "" {
			return true
		}
		n++
		fmt.Fprintf(&b, "JOB %d:\n", n)
		if link := cardLink(card, base); link != "" {
			fmt.Fprintf(&b, "URL: %s\n", link)
		}
		fmt.Fprintf(&b, "TEXT: %s\n---\n", truncate(text, MaxCardChars))
		return n < MaxCards
	})
	return b.String(), nil
}

// findCards returns the posting elements of the page, or nil when none are found.
func findCards(doc *goquery.Document) *goquery.Selection {
	for _, sel := range cardSelectors {
		plausible := doc.Find(sel).FilterFunction(func(_ int, el *goquery.Selection) bool {
			n := len(cleanText(el.Text()))
			if n < minCardChars || n > maxCardSpan {
				return false
			}
			_, self := el.Attr("href")
			return self || el.Find("a[href]").Length() > 0
		})
		// Nested matches duplicate text; keep only the outermost plausible cards.
		cards := plausible.FilterFunction(func(_ int, el *goquery.Selection) bool {
			return el.ParentsFiltered(sel).FilterFunction(func(_ int, p *goquery.Selection) bool {
				return plausible.IndexOfNode(p.Get(0)) >= 0
			}).Length() == 0
		})
		if cards.Length() > 0 {
			return cards
		}
	}
	return nil
}

func cardLink(card *goquery.Selection, base *url.URL) string {
	href, ok := card.Find("a[href]").First().Attr("href")
	if !ok {
		href, ok = card.Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
