package notify

import (
	"embed"
	"path"
	"strings"
	"text/template"
)

//go:embed templates
var templateFS embed.FS

const fallbackLanguage = "en"

// renderEmail loads the subject/body template pair for a template name and
// language and substitutes the format values into both. The recipient's
// language is tried first, then the fallback. Any missing file or template
// error yields ok=false; the caller treats that as a silent no-send.
func renderEmail(name, language string, formats map[string]interface{}) (subject, body string, ok bool) {
	rawSubject, rawBody, ok := loadTemplatePair(name, language)
	if !ok {
		return "", "", false
	}
	subject, err := substitute(rawSubject, formats)
	if err != nil {
		return "", "", false
	}
	body, err = substitute(rawBody, formats)
	if err != nil {
		return "", "", false
	}
	return strings.TrimSpace(subject), body, true
}

func loadTemplatePair(name, language string) (subject, body string, ok bool) {
	for _, lang := range candidateLanguages(language) {
		s, err := templateFS.ReadFile(path.Join("templates", name, lang, "subject.txt"))
		if err != nil {
			continue
		}
		b, err := templateFS.ReadFile(path.Join("templates", name, lang, "body.txt"))
		if err != nil {
			continue
		}
		return string(s), string(b), true
	}
	return "", "", false
}

func candidateLanguages(language string) []string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" || language == fallbackLanguage {
		return []string{fallbackLanguage}
	}
	return []string{language, fallbackLanguage}
}

func substitute(text string, formats map[string]interface{}) (string, error) {
	tmpl, err := template.New("email").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, formats); err != nil {
		return "", err
	}
	return out.String(), nil
}
