package chromepdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/veridoc/veridoc/core/certificate"
)

var _ certificate.Renderer = (*Renderer)(nil)

// Config holds renderer settings, mapped from the environment.
type Config struct {
	// VerifyBaseURL enables the QR badge. The certificate ID is appended as
	// a path segment, so it must point at the public certificate
	// verification route (for this service, .../verify/certificate). Empty
	// disables QR generation.
	VerifyBaseURL   string `env:"RENDERER_VERIFY_BASE_URL"`
	PrintBackground bool   `env:"RENDERER_PRINT_BACKGROUND" envDefault:"true"`
}

// Renderer produces PDF artifacts via headless Chrome. Thread-safe; each
// render runs in its own browser context.
type Renderer struct {
	verifyBaseURL   string
	printBackground bool
}

func New(cfg Config) *Renderer {
	return &Renderer{
		verifyBaseURL:   strings.TrimSuffix(cfg.VerifyBaseURL, "/"),
		printBackground: cfg.PrintBackground,
	}
}

// Render merges the template source with recipient data and prints the
// resulting document to PDF. The context deadline bounds the whole browser
// session.
func (r *Renderer) Render(ctx context.Context, src certificate.TemplateSource, data map[string]any) ([]byte, error) {
	doc, err := r.merge(src, data)
	if err != nil {
		return nil, err
	}
	return r.printToPDF(ctx, doc)
}

// merge executes the template markup against the data and wraps the result
// into a complete HTML document carrying the stylesheet.
func (r *Renderer) merge(src certificate.TemplateSource, data map[string]any) (string, error) {
	merged := make(map[string]any, len(data)+2)
	for k, v := range data {
		merged[k] = v
	}
	if r.verifyBaseURL != "" {
		if certID, ok := merged["certificateId"].(string); ok && certID != "" {
			verifyURL := r.verifyBaseURL + "/" + certID
			badge, err := qrBadge(verifyURL)
			if err != nil {
				return "", fmt.Errorf("generate verification qr: %w", err)
			}
			merged["verifyUrl"] = verifyURL
			merged["verifyQR"] = badge
		}
	}

	tmpl, err := template.New("markup").Option("missingkey=error").Parse(src.Markup)
	if err != nil {
		return "", fmt.Errorf("parse template markup: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, merged); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	var doc bytes.Buffer
	if err := documentTemplate.Execute(&doc, documentData{
		Style: template.CSS(src.Style),
		Body:  template.HTML(body.String()),
	}); err != nil {
		return "", fmt.Errorf("assemble document: %w", err)
	}
	return doc.String(), nil
}

func (r *Renderer) printToPDF(ctx context.Context, doc string) ([]byte, error) {
	cctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdf []byte
	err := chromedp.Run(cctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := page.PrintToPDF().
				WithPrintBackground(r.printBackground).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return pdf, nil
}

// qrBadge encodes the URL as a PNG data URI suitable for an <img> src.
func qrBadge(url string) (template.URL, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), nil
}

type documentData struct {
	Style template.CSS
	Body  template.HTML
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>{{.Style}}</style>
</head>
<body>{{.Body}}</body>
</html>`))
