// Package importer reads product exports (spreadsheet CSV or scraped JSON)
// into catalog products.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/catalog-janitor/internal/model"
)

// Format is an input file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for files that are neither CSV nor JSON.
var ErrUnknownFormat = errors.New("unknown import format")

// DetectFormat picks a format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Record is one parsed product together with its optional image.
type Record struct {
	ImageURL string
	Product  model.Product
	// Line is the CSV line or 1-based JSON array index.
	Line int
}

// Skip is a record rejected for data quality.
type Skip struct {
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
	Line   int    `json:"line"`
}

// Result is the outcome of parsing a file.
type Result struct {
	Records []Record
	Skipped []Skip
	Total   int
}

// Parser converts exports to products.
type Parser struct{}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses r in the given format. Bad records are skipped and
// counted; only unreadable input fails the whole file.
func (p *Parser) ParseFile(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch format {
	case FormatCSV:
		res, err = p.parseCSV(ctx, r)
	case FormatJSON:
		res, err = p.parseJSON(ctx, r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Parsed import file",
		"format", format,
		"total", res.Total,
		"valid", len(res.Records),
		"skipped", len(res.Skipped))
	return res, nil
}

// columnAliases maps header names seen in exports to record fields.
var columnAliases = map[string]string{
	"id": "id",
	"name": "name", "title": "name", "product": "name", "emri": "name",
	"brand": "brand", "marka": "brand",
	"category": "category", "kategoria": "category",
	"subcategory": "subcategory", "nenkategoria": "subcategory",
	"description": "description", "pershkrimi": "description",
	"price": "price", "cmimi": "price",
	"stock": "stock_quantity", "stock_quantity": "stock_quantity", "qty": "stock_quantity", "quantity": "stock_quantity", "sasia": "stock_quantity",
	"image": "image_url", "image_url": "image_url", "img": "image_url",
}

func (p *Parser) parseCSV(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := columnAliases[key]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["name"]; !ok {
		return nil, fmt.Errorf("CSV header has no name column: %v", header)
	}

	res := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Total++
				res.Skipped = append(res.Skipped, Skip{Line: parseErr.Line, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)

		fields := make(map[string]string, len(columns))
		for field, i := range columns {
			if i < len(row) {
				fields[field] = row[i]
			}
		}
		res.add(line, fields)
	}
	return res, nil
}

// jsonRecord accepts the field spellings scraped files use. Price and stock
// may be numbers or strings.
type jsonRecord struct {
	ID            json.RawMessage `json:"id"`
	Name          string          `json:"name"`
	Title         string          `json:"title"`
	Brand         string          `json:"brand"`
	Category      string          `json:"category"`
	Subcategory   string          `json:"subcategory"`
	Description   string          `json:"description"`
	Image         string          `json:"image"`
	ImageURL      string          `json:"image_url"`
	Price         json.RawMessage `json:"price"`
	StockQuantity json.RawMessage `json:"stock_quantity"`
	Stock         json.RawMessage `json:"stock"`
}

func (p *Parser) parseJSON(ctx context.Context, r io.Reader) (*Result, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON array: %w", err)
	}

	res := &Result{}
	for i, msg := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec jsonRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			res.Total++
			res.Skipped = append(res.Skipped, Skip{Line: i + 1, Reason: "not a product object"})
			continue
		}
		stock := rec.StockQuantity
		if len(stock) == 0 {
			stock = rec.Stock
		}
		res.add(i+1, map[string]string{
			"id":             rawText(rec.ID),
			"name":           firstNonEmpty(rec.Name, rec.Title),
			"brand":          rec.Brand,
			"category":       rec.Category,
			"subcategory":    rec.Subcategory,
			"description":    rec.Description,
			"price":          rawText(rec.Price),
			"stock_quantity": rawText(stock),
			"image_url":      firstNonEmpty(rec.ImageURL, rec.Image),
		})
	}
	return res, nil
}

// add validates one record and files it as kept or skipped.
func (res *Result) add(line int, fields map[string]string) {
	res.Total++
	rec, reason := buildRecord(fields)
	if reason != "" {
		res.Skipped = append(res.Skipped, Skip{Line: line, Name: strings.TrimSpace(fields["name"]), Reason: reason})
		slog.Debug("Skipping import record", "line", line, "reason", reason)
		return
	}
	rec.Line = line
	res.Records = append(res.Records, rec)
}

func buildRecord(f map[string]string) (Record, string) {
	name := collapseSpace(f["name"])
	if name == "" {
		return Record{}, "missing name"
	}

	price, err := ParsePrice(f["price"])
	if err != nil {
		return Record{}, err.Error()
	}

	var id int64
	if s := strings.TrimSpace(f["id"]); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return Record{}, fmt.Sprintf("invalid id %q", s)
		}
		id = n
	}

	stock := 0
	if s := strings.TrimSpace(f["stock_quantity"]); s != "" {
		n, err := strconv.Atoi(strings.TrimSuffix(s, ".0"))
		if err != nil {
			return Record{}, fmt.Sprintf("invalid stock %q", s)
		}
		if n < 0 {
			return Record{}, fmt.Sprintf("negative stock %d", n)
		}
		stock = n
	}

	brand := collapseSpace(f["brand"])
	if strings.EqualFold(brand, model.UnknownBrand) {
		brand = ""
	}

	return Record{
		ImageURL: strings.TrimSpace(f["image_url"]),
		Product: model.Product{
			ID:            id,
			Name:          name,
			Brand:         model.StringPtr(brand),
			Category:      model.StringPtr(collapseSpace(f["category"])),
			Subcategory:   model.StringPtr(collapseSpace(f["subcategory"])),
			Description:   model.StringPtr(strings.TrimSpace(f["description"])),
			Price:         price,
			StockQuantity: stock,
		},
	}, ""
}

var (
	currencyPattern = regexp.MustCompile(`(?i)(lekë|leke|lek|all|eur|€|\$)`)
	// dotThousands matches "1.250" or "1.250.000": dots grouping digits by
	// three, with no decimal part.
	dotThousands = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

// ParsePrice reads a price such as "1.250,00 Lekë", "1.250", "12.5" or
// "€9,90". Blank, non-numeric and negative prices are rejected.
func ParsePrice(s string) (decimal.Decimal, error) {
	text := strings.TrimSpace(currencyPattern.ReplaceAllString(s, ""))
	text = strings.ReplaceAll(text, " ", "")
	if text == "" {
		return decimal.Zero, errors.New("missing price")
	}

	// A comma after the last dot is a decimal comma.
	if comma := strings.LastIndex(text, ","); comma >= 0 {
		if dot := strings.LastIndex(text, "."); dot < comma {
			text = strings.ReplaceAll(text, ".", "")
			text = strings.Replace(text, ",", ".", 1)
		} else {
			text = strings.ReplaceAll(text, ",", "")
		}
	} else if dotThousands.MatchString(text) {
		text = strings.ReplaceAll(text, ".", "")
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", strings.TrimSpace(s))
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s", d.String())
	}
	return d, nil
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
