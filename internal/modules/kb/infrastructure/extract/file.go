package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"SemHub/internal/modules/kb/domain/knowledge"

	"github.com/ledongthuc/pdf"
)

// extractFile 按扩展名抽取本地文件。
// 未知扩展名按纯文本读取，非 UTF-8 内容视为坏输入。
func (e *Extractor) extractFile(path string) (string, error) {
	wrap := func(err error) error {
		return &knowledge.ExtractionError{Kind: knowledge.SourceKindFile, Locator: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		text, err := extractPDF(path)
		if err != nil {
			return "", wrap(err)
		}
		return text, nil
	case ".docx":
		text, err := extractDocx(path)
		if err != nil {
			return "", wrap(err)
		}
		return text, nil
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", wrap(err)
		}
		if !utf8.Valid(raw) {
			return "", wrap(fmt.Errorf("file is not valid utf-8 text"))
		}
		return string(raw), nil
	}
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页解析失败跳过，整本失败在外层兜底
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return out, nil
}

// docx 是 zip 包，正文在 word/document.xml，段落边界是 w:p 元素
func extractDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", err
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("docx missing word/document.xml")
	}

	var sb strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(docXML))
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("docx contains no text")
	}
	return out, nil
}
