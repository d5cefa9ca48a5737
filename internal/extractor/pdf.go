package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cv-insight-go/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
)

const pdfParseTimeout = 30 * time.Second

// TextExtractor 从上传的CV文件中提取纯文本
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, filename string) (string, error)
}

// PDFTextExtractor 基于 Eino PDF Parser 的文本提取器
// 非PDF扩展名的文件按UTF-8纯文本直接读取
type PDFTextExtractor struct {
	parser *pdf.PDFParser
}

// NewPDFTextExtractor 初始化PDF文本提取器
// ToPages 关闭，整份文档作为连续文本返回
func NewPDFTextExtractor(ctx context.Context) (*PDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF解析器失败: %w", err)
	}
	return &PDFTextExtractor{parser: p}, nil
}

var _ TextExtractor = (*PDFTextExtractor)(nil)

// ExtractText 从文件字节中提取纯文本
func (e *PDFTextExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("文件内容为空: %s", filename)
	}

	lower := strings.ToLower(filename)
	if !strings.HasSuffix(lower, ".pdf") {
		return string(data), nil
	}
	return e.extractFromPDF(ctx, bytes.NewReader(data), filename)
}

func (e *PDFTextExtractor) extractFromPDF(ctx context.Context, reader io.Reader, uri string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pdfParseTimeout)
	defer cancel()

	startTime := time.Now()
	docs, err := e.parser.Parse(ctx, reader,
		einoparser.WithURI(uri),
		einoparser.WithExtraMeta(map[string]interface{}{
			"source_filename": uri,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("PDF解析失败 %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("PDF解析无结果: %s", uri)
	}

	// ToPages关闭时通常只有一个文档，合并只是兜底
	var builder strings.Builder
	for i, doc := range docs {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(doc.Content)
	}

	text := builder.String()
	logger.Ctx(ctx).Debug().
		Str("uri", uri).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(startTime)).
		Msg("PDF文本提取完成")
	return text, nil
}
