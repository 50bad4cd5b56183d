package service

import (
	"bytes"
	"html/template"
	"time"

	"mygpt-backend/internal/model"

	"github.com/russross/blackfriday"
)

const (
	exportHTMLFlags = blackfriday.HTML_USE_XHTML |
		blackfriday.HTML_SKIP_HTML |
		blackfriday.HTML_SAFELINK |
		blackfriday.HTML_USE_SMARTYPANTS |
		blackfriday.HTML_SMARTYPANTS_DASHES

	exportExtensions = blackfriday.EXTENSION_NO_INTRA_EMPHASIS |
		blackfriday.EXTENSION_TABLES |
		blackfriday.EXTENSION_FENCED_CODE |
		blackfriday.EXTENSION_AUTOLINK |
		blackfriday.EXTENSION_STRIKETHROUGH |
		blackfriday.EXTENSION_SPACE_HEADERS
)

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="created">{{.Created}}</p>
{{range .Turns}}<section class="turn {{.Role}}">
<h2>{{if eq .Role "user"}}You{{else}}MyGPT{{end}}</h2>
{{if .Img}}<img src="{{.Img}}" alt="uploaded image">
{{end}}{{.Body}}
{{if .AIImg}}<img src="{{.AIImg}}" alt="generated image">
{{end}}</section>
{{end}}</body>
</html>
`))

type transcriptTurn struct {
	Role  string
	Img   string
	AIImg string
	Body  template.HTML
}

// ExportHTML renders a chat as a standalone HTML page. Model answers are markdown;
// user text is escaped as-is. assetURL maps stored image paths to URLs.
func ExportHTML(chat *model.Chat, assetURL func(string) string) ([]byte, error) {
	title := "Chat"
	turns := make([]transcriptTurn, 0, len(chat.History))
	for i, t := range chat.History {
		if i == 0 && t.Role == model.RoleUser && t.Text != "" {
			title = model.Title(t.Text)
		}

		tt := transcriptTurn{Role: string(t.Role)}
		if t.Img != "" {
			tt.Img = assetURL(t.Img)
		}
		if t.AIImg != "" {
			tt.AIImg = assetURL(t.AIImg)
		}
		if t.Role == model.RoleModel {
			tt.Body = renderMarkdown(t.Text)
		} else {
			tt.Body = template.HTML("<p>" + template.HTMLEscapeString(t.Text) + "</p>")
		}
		turns = append(turns, tt)
	}

	var buf bytes.Buffer
	err := transcriptTemplate.Execute(&buf, map[string]interface{}{
		"Title":   title,
		"Created": chat.CreatedAt.Format(time.RFC1123),
		"Turns":   turns,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderMarkdown(text string) template.HTML {
	renderer := blackfriday.HtmlRenderer(exportHTMLFlags, "", "")
	return template.HTML(blackfriday.Markdown([]byte(text), renderer, exportExtensions))
}
