package service

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"schoolku_backend/internals/features/finance/receipts/model"
)

var receiptTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.ReceiptNo}}</title>
<style>
body{font-family:Helvetica,Arial,sans-serif;margin:40px;color:#222}
h1{font-size:20px;margin-bottom:4px}
table{width:100%;border-collapse:collapse;margin-top:24px}
td{padding:6px 0;border-bottom:1px solid #eee}
td.r{text-align:right}
</style></head>
<body>
<h1>Kuitansi Pembayaran</h1>
<div>{{.ReceiptNo}} &middot; {{.IssuedAt}}</div>
<table>
<tr><td>Invoice</td><td class="r">{{.InvoiceNumber}}</td></tr>
<tr><td>Siswa</td><td class="r">{{.StudentName}}</td></tr>
<tr><td>Jumlah</td><td class="r">{{.Currency}} {{.Amount}}</td></tr>
<tr><td>Metode</td><td class="r">{{.Provider}}</td></tr>
</table>
</body></html>`))

// ReceiptView is the data printed on a receipt document.
type ReceiptView struct {
	ReceiptNo     string
	InvoiceNumber string
	StudentName   string
	Amount        string
	Currency      string
	Provider      string
	IssuedAt      string
}

func NewReceiptView(rc model.Receipt, invoiceNumber, studentName, provider string) ReceiptView {
	return ReceiptView{
		ReceiptNo:     rc.ReceiptNo,
		InvoiceNumber: invoiceNumber,
		StudentName:   studentName,
		Amount:        rc.ReceiptAmount.StringFixedBank(2),
		Currency:      rc.ReceiptCurrency,
		Provider:      provider,
		IssuedAt:      rc.ReceiptIssuedAt.Format("02 Jan 2006 15:04 MST"),
	}
}

// Document is a rendered receipt ready for upload.
type Document struct {
	Body        []byte
	ContentType string
	Ext         string
}

type Renderer interface {
	Render(ctx context.Context, v ReceiptView) (Document, error)
}

func renderHTML(v ReceiptView) ([]byte, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HTMLRenderer keeps the receipt as a standalone HTML page.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(_ context.Context, v ReceiptView) (Document, error) {
	b, err := renderHTML(v)
	if err != nil {
		return Document{}, err
	}
	return Document{Body: b, ContentType: "text/html; charset=utf-8", Ext: "html"}, nil
}

// PDFRenderer prints the HTML through headless Chrome.
type PDFRenderer struct {
	Timeout time.Duration
}

func (r PDFRenderer) Render(ctx context.Context, v ReceiptView) (Document, error) {
	html, err := renderHTML(v)
	if err != nil {
		return Document{}, err
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()
	cctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdf []byte
	err = chromedp.Run(cctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return Document{}, err
	}
	return Document{Body: pdf, ContentType: "application/pdf", Ext: "pdf"}, nil
}

// ObjectKey is deterministic so a replayed render overwrites the same object.
func ObjectKey(rc model.Receipt, ext string) string {
	return "receipts/" + rc.ReceiptSchoolID.String() + "/" + rc.ReceiptNo + "." + ext
}
