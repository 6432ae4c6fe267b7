package enrich

import (
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExtractText prefers the HTML file's text when it
// can be read, stripping <script>/<style> via a real DOM parser rather than
// regex, falling back to the crawler-provided text field. File-missing is
// non-fatal — it simply selects the fallback.
func ExtractText(htmlPath, fallbackText string) (string, error) {
	if htmlPath == "" {
		return collapseWhitespace(fallbackText), nil
	}
	f, err := os.Open(htmlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return collapseWhitespace(fallbackText), nil
		}
		return collapseWhitespace(fallbackText), err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return collapseWhitespace(fallbackText), err
	}
	doc.Find("script, style").Remove()
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return collapseWhitespace(fallbackText), nil
	}
	return collapseWhitespace(text), nil
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
