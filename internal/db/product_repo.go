package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"storefront/internal/types"
)

// ProductRepo manages the product catalog and the sold-state transition.
//
// Key invariant: MarkSold is the ONLY write path that touches the sold
// column, and it is a conditional update (sold = FALSE predicate). Under
// concurrent duplicate webhook deliveries for the same product, the database
// serializes the row update and exactly one caller observes RowsAffected = 1.
type ProductRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewProductRepo creates a ProductRepo backed by the given database
// connection (pool or transaction).
func NewProductRepo(db DBTX, logger *slog.Logger) *ProductRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductRepo{db: db, logger: logger}
}

// Create inserts a new product and populates its generated ID and timestamps.
func (r *ProductRepo) Create(ctx context.Context, p *types.Product) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO products (name, description, price_cents)
		 VALUES ($1, $2, $3)
		 RETURNING id, sold, created_at, updated_at`,
		p.Name, p.Description, p.PriceCents,
	).Scan(&p.ID, &p.Sold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create product", err)
	}
	return nil
}

// GetByID returns the product with the given ID, or an AppError with code
// not_found_product.
func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*types.Product, error) {
	var p types.Product
	err := r.db.QueryRow(ctx,
		`SELECT id, name, description, price_cents, sold, created_at, updated_at
		 FROM products
		 WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Sold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundProduct,
				fmt.Sprintf("product %d does not exist", id),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load product", err)
	}
	return &p, nil
}

// List returns all products, newest first.
func (r *ProductRepo) List(ctx context.Context) ([]*types.Product, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, description, price_cents, sold, created_at, updated_at
		 FROM products
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list products", err)
	}
	defer rows.Close()

	var products []*types.Product
	for rows.Next() {
		var p types.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Sold, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan product row", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate product rows", err)
	}
	return products, nil
}

// Update modifies catalog fields (name, description, price). It never touches
// the sold column; only MarkSold may transition sale state.
func (r *ProductRepo) Update(ctx context.Context, p *types.Product) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET name = $1,
		     description = $2,
		     price_cents = $3,
		     updated_at = NOW()
		 WHERE id = $4`,
		p.Name, p.Description, p.PriceCents, p.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update product", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeNotFoundProduct,
			fmt.Sprintf("product %d does not exist", p.ID),
			nil,
		)
	}
	return nil
}

// Delete removes the product from the catalog.
func (r *ProductRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeNotFoundProduct,
			fmt.Sprintf("product %d does not exist", id),
			nil,
		)
	}
	return nil
}

// MarkSold conditionally transitions sold from false to true.
//
// The WHERE sold = FALSE predicate makes this a compare-and-swap: when N
// concurrent settlements race on the same product, the database serializes
// the row write and exactly one UPDATE reports RowsAffected = 1. Returning
// false means another settlement already won; the caller treats that as a
// duplicate-delivery skip.
//
// If the product row was deleted between the caller's read and this write,
// RowsAffected is also 0; from the settlement pipeline's point of view the
// product is no longer sellable either way, so the skip is still correct.
func (r *ProductRepo) MarkSold(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET sold = TRUE,
		     updated_at = NOW()
		 WHERE id = $1
		   AND sold = FALSE`,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark product sold", err)
	}
	return tag.RowsAffected() == 1, nil
}
