package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/model"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
)

const maxFileBytes = 32 << 20

func (n *Normalizer) normalizeFile(ctx context.Context, src *model.Source) ([]model.NormalizedUnit, error) {
	if src.File == nil || src.File.Key == "" {
		return nil, fmt.Errorf("%w: file source has no archive reference", appErr.ErrEmptySource)
	}
	rc, err := n.archive.Open(ctx, src.File.Key)
	if err != nil {
		return nil, fmt.Errorf("open archived file %s: %w", src.File.Key, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxFileBytes))
	if err != nil {
		return nil, fmt.Errorf("read archived file %s: %w", src.File.Key, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: archived file %s is empty", appErr.ErrEmptySource, src.File.Key)
	}
	switch src.File.Kind {
	case model.FileKindPDF:
		return pdfUnits(ctx, raw)
	case model.FileKindJSON:
		return jsonUnits(raw)
	case model.FileKindMarkdown:
		return []model.NormalizedUnit{{
			Text:       markdownToText(raw),
			SourceType: model.SourceTypeFile,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: file kind %s", appErr.ErrUnsupportedSourceType, src.File.Kind)
	}
}

// pdfUnits extracts one unit per page; pages whose text extraction fails
// are skipped, matching the per-page failure domain of website fetches.
func pdfUnits(ctx context.Context, raw []byte) ([]model.NormalizedUnit, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	total := reader.NumPage()
	units := make([]model.NormalizedUnit, 0, total)
	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("pdf page extraction failed, skipping", zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		units = append(units, model.NormalizedUnit{
			Text:       content,
			SourceType: model.SourceTypeFile,
			OriginRef:  "page:" + strconv.Itoa(pageNum),
		})
	}
	return units, nil
}

// jsonUnits decodes and re-serializes the document so the stored text is
// stable regardless of the original formatting.
func jsonUnits(raw []byte) ([]model.NormalizedUnit, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode json file: %v", appErr.ErrInvalid, err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json file: %w", err)
	}
	return []model.NormalizedUnit{{
		Text:       string(out),
		SourceType: model.SourceTypeFile,
	}}, nil
}

func markdownToText(raw []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(raw))

	var sb strings.Builder
	writeLines := func(node ast.Node) {
		for i := 0; i < node.Lines().Len(); i++ {
			line := node.Lines().At(i)
			sb.Write(line.Value(raw))
		}
	}
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Text:
			sb.Write(n.Segment.Value(raw))
			if n.SoftLineBreak() || n.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.FencedCodeBlock:
			writeLines(n)
		case *ast.CodeBlock:
			writeLines(n)
		default:
			if node.Type() == ast.TypeBlock && sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
