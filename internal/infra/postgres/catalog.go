package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

// ============================================================
// Products
// ============================================================

// GetProducts returns the products found among ids, keyed by id.
func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	stmt, args, err := s.builder.
		Select("id", "name", "price::text", "pro_price::text", "is_promotion", "promotion_pct::text", "updated_at").
		From("products").
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select products sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// UpsertProduct creates or replaces a product.
func (s *Store) UpsertProduct(ctx context.Context, p *domain.Product) error {
	var proPrice any
	if p.ProPrice != nil {
		proPrice = p.ProPrice.String()
	}

	stmt, args, err := s.builder.Insert("products").
		Columns("id", "name", "price", "pro_price", "is_promotion", "promotion_pct", "updated_at").
		Values(p.ID, p.Name, p.Price.String(), proPrice, p.IsPromotion, p.PromotionPct.String(), s.now()).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			pro_price = EXCLUDED.pro_price,
			is_promotion = EXCLUDED.is_promotion,
			promotion_pct = EXCLUDED.promotion_pct,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert product sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p                   domain.Product
		price, promotionPct string
		proPrice            *string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &proPrice, &p.IsPromotion, &promotionPct, &p.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if p.PromotionPct, err = decimal.NewFromString(promotionPct); err != nil {
		return nil, fmt.Errorf("parse promotion: %w", err)
	}
	if proPrice != nil {
		v, err := decimal.NewFromString(*proPrice)
		if err != nil {
			return nil, fmt.Errorf("parse pro price: %w", err)
		}
		p.ProPrice = &v
	}
	return &p, nil
}

// ============================================================
// Minimum quantity rules
// ============================================================

// GetMinimumQuantityRules returns the rules found among ids, keyed by product.
func (s *Store) GetMinimumQuantityRules(ctx context.Context, ids []string) (map[string]*domain.MinimumQuantityRule, error) {
	out := make(map[string]*domain.MinimumQuantityRule, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	stmt, args, err := s.builder.
		Select("product_id", "minimum_quantity", "updated_at").
		From("minimum_quantity_rules").
		Where(squirrel.Eq{"product_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select rules sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.MinimumQuantityRule
		if err := rows.Scan(&r.ProductID, &r.MinimumQuantity, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out[r.ProductID] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// UpsertMinimumQuantityRule creates or replaces the rule of a product.
func (s *Store) UpsertMinimumQuantityRule(ctx context.Context, r *domain.MinimumQuantityRule) error {
	return s.inTx(ctx, func(tx *Store) error {
		products, err := tx.GetProducts(ctx, []string{r.ProductID})
		if err != nil {
			return err
		}
		if _, ok := products[r.ProductID]; !ok {
			return &domain.ErrNotFound{Resource: "product", ID: r.ProductID}
		}

		stmt, args, err := tx.builder.Insert("minimum_quantity_rules").
			Columns("product_id", "minimum_quantity", "updated_at").
			Values(r.ProductID, r.MinimumQuantity, tx.now()).
			Suffix("ON CONFLICT (product_id) DO UPDATE SET minimum_quantity = EXCLUDED.minimum_quantity, updated_at = EXCLUDED.updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert rule sql: %w", err)
		}
		if _, err := tx.exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("upsert rule: %w", err)
		}
		return nil
	})
}

// DeleteMinimumQuantityRule removes the rule of a product.
func (s *Store) DeleteMinimumQuantityRule(ctx context.Context, productID string) error {
	stmt, args, err := s.builder.Delete("minimum_quantity_rules").
		Where(squirrel.Eq{"product_id": productID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete rule sql: %w", err)
	}

	tag, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "minimum quantity rule", ID: productID}
	}
	return nil
}

// ============================================================
// Carts
// ============================================================

// GetCart returns the cart lines ordered by product id.
func (s *Store) GetCart(ctx context.Context, accountID string) ([]domain.CartLine, error) {
	stmt, args, err := s.builder.Select("product_id", "quantity").
		From("cart_lines").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select cart sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return lines, nil
}

// SetCartLine sets the quantity of a line; zero removes it.
func (s *Store) SetCartLine(ctx context.Context, accountID, productID string, quantity int) error {
	var (
		stmt string
		args []any
		err  error
	)
	if quantity <= 0 {
		stmt, args, err = s.builder.Delete("cart_lines").
			Where(squirrel.Eq{"account_id": accountID, "product_id": productID}).
			ToSql()
	} else {
		stmt, args, err = s.builder.Insert("cart_lines").
			Columns("account_id", "product_id", "quantity").
			Values(accountID, productID, quantity).
			Suffix("ON CONFLICT (account_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity").
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build cart line sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("write cart line: %w", err)
	}
	return nil
}

// ClearCart removes every line of the cart.
func (s *Store) ClearCart(ctx context.Context, accountID string) error {
	stmt, args, err := s.builder.Delete("cart_lines").
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear cart sql: %w", err)
	}
	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
