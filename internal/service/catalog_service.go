package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

var catalogTracer = otel.Tracer("service/catalog")

var maxPromotionPct = decimal.NewFromInt(100)

// CatalogService administers products and their minimum-quantity rules.
type CatalogService struct {
	catalog port.CatalogStore
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(catalog port.CatalogStore, logger *zap.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, logger: logger}
}

// ============================================================
// Products: PUT /v1/admin/products/{productId}
// ============================================================

func (s *CatalogService) UpsertProduct(ctx context.Context, productID string, req *domain.UpsertProductRequest) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpsertProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	productID = strings.TrimSpace(productID)
	name := strings.TrimSpace(req.Name)
	switch {
	case productID == "":
		return nil, &domain.ErrValidation{Field: "productId", Message: "required"}
	case name == "":
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	case req.Price.IsNegative():
		return nil, &domain.ErrValidation{Field: "price", Message: "must not be negative"}
	case req.ProPrice != nil && req.ProPrice.IsNegative():
		return nil, &domain.ErrValidation{Field: "proPrice", Message: "must not be negative"}
	case req.PromotionPct.IsNegative() || req.PromotionPct.GreaterThan(maxPromotionPct):
		return nil, &domain.ErrValidation{Field: "promotionPct", Message: "must be between 0 and 100"}
	}

	product := &domain.Product{
		ID:           productID,
		Name:         name,
		Price:        req.Price,
		ProPrice:     req.ProPrice,
		IsPromotion:  req.IsPromotion,
		PromotionPct: req.PromotionPct,
		UpdatedAt:    time.Now(),
	}
	if err := s.catalog.UpsertProduct(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("product upserted",
		zap.String("product_id", productID),
		zap.String("price", product.Price.String()),
		zap.Bool("promotion", product.IsPromotion),
	)
	return product, nil
}

// ============================================================
// Minimum quantity: PUT|DELETE /v1/admin/products/{productId}/minimum-quantity
// ============================================================

func (s *CatalogService) SetMinimumQuantity(ctx context.Context, productID string, req *domain.MinimumQuantityRequest) (*domain.MinimumQuantityRule, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.SetMinimumQuantity")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	if req.MinimumQuantity < 1 {
		return nil, &domain.ErrValidation{Field: "minimumQuantity", Message: "must be at least 1"}
	}

	rule := &domain.MinimumQuantityRule{
		ProductID:       productID,
		MinimumQuantity: req.MinimumQuantity,
		UpdatedAt:       time.Now(),
	}
	if err := s.catalog.UpsertMinimumQuantityRule(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("minimum quantity set",
		zap.String("product_id", productID),
		zap.Int("minimum_quantity", rule.MinimumQuantity),
	)
	return rule, nil
}

func (s *CatalogService) DeleteMinimumQuantity(ctx context.Context, productID string) error {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.DeleteMinimumQuantity")
	defer span.End()

	if err := s.catalog.DeleteMinimumQuantityRule(ctx, productID); err != nil {
		return err
	}
	s.logger.Info("minimum quantity removed", zap.String("product_id", productID))
	return nil
}
