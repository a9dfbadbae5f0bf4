package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/catalog-janitor/internal/common"
	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/service"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{name: "valid context", ctx: context.Background()},
		{name: "nil context", ctx: nil, wantErr: true},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestValidateProduct(t *testing.T) {
	valid := model.Product{ID: 1, Name: "Vichy Mineral 89", Price: decimal.NewFromInt(20)}

	tests := []struct {
		mutate  func(p *model.Product)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.Product) {}},
		{name: "zero ID allowed", mutate: func(p *model.Product) { p.ID = 0 }},
		{name: "negative ID", mutate: func(p *model.Product) { p.ID = -1 }, wantErr: true},
		{name: "blank name", mutate: func(p *model.Product) { p.Name = "  " }, wantErr: true},
		{name: "negative price", mutate: func(p *model.Product) { p.Price = decimal.NewFromInt(-5) }, wantErr: true},
		{name: "negative stock", mutate: func(p *model.Product) { p.StockQuantity = -1 }, wantErr: true},
		{
			name:    "subcategory without category",
			mutate:  func(p *model.Product) { p.Subcategory = model.StringPtr("Fytyre") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := validateProduct(&p)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProduct)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.ErrorIs(t, validateFilter(service.ProductFilter{}), common.ErrLimitRequired)
	assert.ErrorIs(t, validateFilter(service.ProductFilter{Limit: -1}), common.ErrLimitRequired)
	assert.Error(t, validateFilter(service.ProductFilter{Limit: 5, Subcategory: "Fytyre"}))
	assert.NoError(t, validateFilter(service.ProductFilter{Limit: 5, Category: "farmaci", Subcategory: "Fytyre"}))
}

func TestValidateRun(t *testing.T) {
	now := time.Now()
	assert.ErrorIs(t, validateRun(nil), ErrNilParameter)
	assert.ErrorIs(t, validateRun(&model.Run{Kind: model.RunKindUndo, StartedAt: now}), ErrInvalidRun)
	assert.ErrorIs(t, validateRun(&model.Run{ID: "r", Kind: model.RunKindUndo}), ErrInvalidRun)
	assert.NoError(t, validateRun(&model.Run{ID: "r", Kind: model.RunKindUndo, StartedAt: now}))
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"item_1", "sp", "_x9"} {
		assert.NoError(t, validateIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1x", "a-b", "a b", "x;"} {
		assert.ErrorIs(t, validateIdentifier(bad), ErrInvalidName, bad)
	}
}
