package notify

import (
	"bytes"
	"html/template"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

const confirmationSubject = "Bekreftelse på påmelding"

var confirmationTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"nok": func(v int64) string { return pricing.FormatNOK(v) },
}).Parse(`<p>Hei {{.CustomerName}},</p>
<p>Takk for påmeldingen! Ordrenummer: <strong>{{.OrderID}}</strong></p>
<ul>
{{- range .Students}}
<li>{{.Name}}: {{.Package}} ({{range $i, $c := .Courses}}{{if $i}}, {{end}}{{$c}}{{end}}) {{nok .Total}}{{if .Discount}}, rabatt {{nok .Discount}}{{end}}</li>
{{- end}}
</ul>
<p>Totalt å betale: <strong>{{nok .Amount}}</strong>{{if .Discount}} (du sparer {{nok .Discount}}){{end}}</p>
{{- if .RedirectURL}}
<p><a href="{{.RedirectURL}}">Fullfør betalingen</a></p>
{{- end}}
`))

// RenderConfirmation returns the subject and HTML body for a confirmation email.
func RenderConfirmation(c Confirmation) (string, string, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, c); err != nil {
		return "", "", err
	}
	return confirmationSubject, buf.String(), nil
}
