package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"document-rag/internal/models"
)

// Section is one chunk of extracted text. PageNumber is 1-based and nil for
// formats without pages.
type Section struct {
	Text       string
	PageNumber *int
}

type Parser struct {
	ChunkSize    int
	ChunkOverlap int
}

func New(chunkSize, chunkOverlap int) *Parser {
	return &Parser{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// Extract splits content into sections according to the extension of filename.
func (p *Parser) Extract(filename string, content []byte) ([]Section, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return p.parsePDF(content)
	case ".docx":
		return p.parseDOCX(content)
	case ".pptx":
		return p.parsePPTX(content)
	case ".xlsx":
		return p.parseXLSX(content)
	case ".ods":
		return p.parseODS(content)
	case ".md", ".markdown":
		return p.parseMarkdown(content)
	case ".txt", "":
		return p.getSections(string(content), nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
}

func pageRef(n int) *int { return &n }

func (p *Parser) parsePDF(content []byte) ([]Section, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var sections []Section
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		sections = append(sections, p.getSections(pageText, pageRef(i))...)
	}
	return sections, nil
}

func (p *Parser) parseDOCX(content []byte) ([]Section, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// DOCX has no page numbers
	return p.getSections(stripXMLTags(r.Editable().GetContent()), nil), nil
}

func (p *Parser) parsePPTX(content []byte) ([]Section, error) {
	f, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	type slide struct {
		number int
		text   string
	}
	var slides []slide
	for _, file := range f.File {
		name := strings.TrimPrefix(file.Name, "ppt/slides/slide")
		if name == file.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{number: number, text: extractTextFromXML(string(data))})
	}
	// zip order is arbitrary; slides are numbered in their file names
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var sections []Section
	for _, s := range slides {
		sections = append(sections, p.getSections(s.text, pageRef(s.number))...)
	}
	return sections, nil
}

func (p *Parser) parseXLSX(content []byte) ([]Section, error) {
	f, err := xlsx.OpenBinary(content)
	if err != nil {
		return nil, err
	}

	var sections []Section
	for sheetNum, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		sections = append(sections, p.getSections(sheetText(sheet.Name, rows), pageRef(sheetNum+1))...)
	}
	return sections, nil
}

func (p *Parser) parseODS(content []byte) ([]Section, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sections []Section
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		sections = append(sections, p.getSections(sheetText(sheetName, rows), pageRef(sheetNum+1))...)
	}
	return sections, nil
}

func sheetText(name string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sheet: %s\n", name)
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	return b.String()
}

// parseMarkdown drops markdown syntax and keeps the text of every block.
func (p *Parser) parseMarkdown(content []byte) ([]Section, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(content))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(content))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString(" ")
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					b.Write(line.Value(content))
				}
			}
		}
		if !entering && n.Type() == ast.TypeBlock {
			b.WriteString("\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return p.getSections(b.String(), nil), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}

// stripXMLTags keeps the character data of an XML fragment, turning
// paragraph ends into newlines.
func stripXMLTags(xmlContent string) string {
	var b strings.Builder
	inTag := false
	for i := 0; i < len(xmlContent); i++ {
		c := xmlContent[i]
		switch {
		case c == '<':
			inTag = true
			if strings.HasPrefix(xmlContent[i:], "</w:p>") {
				b.WriteByte('\n')
			}
		case c == '>':
			inTag = false
		case !inTag:
			b.WriteByte(c)
		}
	}
	return html.UnescapeString(b.String())
}

// chunk content into chunks with maxChars and overlapChars
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	content = strings.TrimSpace(content)
	contentLen := len(content)
	if contentLen == 0 {
		return nil
	}
	if contentLen <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)
		for end < contentLen && !utf8.RuneStart(content[end]) {
			end--
		}

		// prefer to break on a space, newline or full stop in the last 10%
		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(content[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= contentLen {
			break
		}
		// the next window overlaps the chunk actually emitted
		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
		for start < contentLen && !utf8.RuneStart(content[start]) {
			start++
		}
	}
	return chunks
}

func (p *Parser) getSections(content string, pageNumber *int) []Section {
	var sections []Section
	for _, chunk := range chunkContent(content, p.ChunkSize, p.ChunkOverlap) {
		sections = append(sections, Section{Text: chunk, PageNumber: pageNumber})
	}
	return sections
}
