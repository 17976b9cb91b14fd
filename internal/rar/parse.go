package rar

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Markers emitted by the RAR result page. Matching happens on the lowercased
// text so diacritics have to be kept as the site renders them.
const (
	wrongCaptchaMarker     = "codul de verificare a fost copiat incorect"
	noRecordMarker         = "nu a fost găsită nicio înregistrare"
	validUntilMarker       = "valabilă până la"
	legacyExpirationMarker = "data expirării"
)

// Month abbreviations used in the Romanian "d-mmm-yyyy" date format
var monthMap = map[string]string{
	"ian":  "01",
	"feb":  "02",
	"mar":  "03",
	"apr":  "04",
	"mai":  "05",
	"iun":  "06",
	"iul":  "07",
	"aug":  "08",
	"sept": "09",
	"oct":  "10",
	"nov":  "11",
	"dec":  "12",
}

var (
	nonDigitRe   = regexp.MustCompile(`\D`)
	fourDigitRe  = regexp.MustCompile(`^\d{4}$`)
	legacyDateRe = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
)

// lookupPage is what we need out of the initial RAR page: where the captcha
// image lives, where the form posts to, and the form's prefilled inputs.
type lookupPage struct {
	captchaSrc string
	action     string
	fields     map[string]string
}

func parseLookupPage(body string) (*lookupPage, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not parse lookup page: %v", err)
	}

	img := findElementByID(doc, "imgVerf")
	if img == nil || attrValue(img, "src") == "" {
		return nil, fmt.Errorf("captcha image not found in page")
	}

	form := findFormByName(doc, "frm")
	if form == nil {
		form = findFirstElement(doc, atom.Form)
	}
	if form == nil {
		return nil, fmt.Errorf("unable to find form element on page")
	}

	return &lookupPage{
		captchaSrc: attrValue(img, "src"),
		action:     attrValue(form, "action"),
		fields:     formInputs(form),
	}, nil
}

// buildFormData replays the form's own inputs and overrides only the VIN and
// captcha fields. The captcha field is verif_cod on the current site; the old
// antirobot name is kept for backward compatibility.
func buildFormData(page *lookupPage, vin string, captchaCode string) url.Values {
	form := url.Values{}
	for name, value := range page.fields {
		form.Set(name, value)
	}

	form.Set("nr_id", strings.ToUpper(vin))

	if _, ok := page.fields["verif_cod"]; ok {
		form.Set("verif_cod", captchaCode)
	} else if _, ok := page.fields["antirobot"]; ok {
		form.Set("antirobot", captchaCode)
	} else {
		// fallback if the form has changed
		form.Set("verif_cod", captchaCode)
	}

	if _, ok := page.fields["trimite"]; ok && form.Get("trimite") == "" {
		form.Set("trimite", "Caută")
	}

	return form
}

func isWrongCaptcha(body string) bool {
	return strings.Contains(strings.ToLower(body), wrongCaptchaMarker)
}

// parseResult reads the result block of a submitted lookup. The result lives
// in div#rezbgcolor; if that div is missing the whole page text is scanned so
// layout changes degrade instead of breaking.
func parseResult(body string) (status string, expirationDate string) {
	contentText := body
	if doc, err := html.Parse(strings.NewReader(body)); err == nil {
		if div := findElementByID(doc, "rezbgcolor"); div != nil {
			contentText = extractText(div)
		}
	}
	lower := strings.ToLower(contentText)

	status = models.StatusNotFound
	expirationDate = models.UnknownExpiration

	if strings.Contains(lower, noRecordMarker) {
		return status, expirationDate
	}
	status = models.StatusValid

	if idx := strings.Index(lower, validUntilMarker); idx >= 0 {
		fragment := lower[idx+len(validUntilMarker):]
		words := strings.Fields(fragment)
		if len(words) > 0 {
			raw := strings.Trim(words[0], ".")
			if iso, err := parseRomanianDate(raw); err == nil {
				expirationDate = iso
			}
		}
	} else if idx := strings.Index(lower, legacyExpirationMarker); idx >= 0 {
		// old layout: "Data expirării" followed by dd.mm.yyyy
		if m := legacyDateRe.FindStringSubmatch(lower[idx:]); m != nil {
			expirationDate = fmt.Sprintf("%s-%s-%s", m[3], padDay(m[2]), padDay(m[1]))
		}
	}

	return status, expirationDate
}

// parseRomanianDate converts "4-mai-2026" into "2026-05-04". An unknown month
// abbreviation falls back to January rather than failing the whole lookup.
func parseRomanianDate(raw string) (string, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("unexpected date layout: %q", raw)
	}

	day, month, year := parts[0], parts[1], parts[2]
	monthNum, ok := monthMap[month]
	if !ok {
		monthNum = "01"
	}

	return fmt.Sprintf("%s-%s-%s", year, monthNum, padDay(day)), nil
}

func padDay(day string) string {
	if len(day) == 1 {
		return "0" + day
	}
	return day
}

func digitsOnly(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// --- html tree helpers ---

func findElementByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attrValue(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findFormByName(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Form && attrValue(n, "name") == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFormByName(c, name); found != nil {
			return found
		}
	}
	return nil
}

func findFirstElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirstElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// formInputs collects the name/value pairs of all <input> elements in a form.
// Inputs without a name are skipped.
func formInputs(form *html.Node) map[string]string {
	fields := make(map[string]string)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Input {
			if name := attrValue(n, "name"); name != "" {
				fields[name] = attrValue(n, "value")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)

	return fields
}

func extractText(n *html.Node) string {
	var parts []string

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if trimmed := strings.TrimSpace(node.Data); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.Join(parts, "\n")
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
