package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/storefront/internal/core/domain"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		unit_price BIGINT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		customer_name TEXT NOT NULL,
		customer_address TEXT NOT NULL,
		customer_phone TEXT NOT NULL,
		customer_note TEXT NOT NULL DEFAULT '',
		subtotal BIGINT NOT NULL,
		shipping BIGINT NOT NULL,
		grand_total BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id UUID NOT NULL REFERENCES orders (id),
		product_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		unit_price BIGINT NOT NULL,
		quantity INTEGER NOT NULL,
		subtotal BIGINT NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

const postgresProductColumns = `id, name, unit_price, stock, description, category, created_at, updated_at`

// PostgresAdapter settles with row-level locks: every product in the order is
// locked FOR UPDATE in id order, checked, then debited.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+postgresProductColumns+` FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return product, nil
}

func (p *PostgresAdapter) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := p.pool.Query(ctx, `SELECT `+postgresProductColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[product.ID] = product
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+postgresProductColumns+` FROM products WHERE stock > 0 ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, product)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) CommitOrder(ctx context.Context, order domain.OrderSummary) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, len(order.Lines))
	for i, line := range order.Lines {
		ids[i] = line.ProductID
	}

	locked, err := lockStock(ctx, tx, ids)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		row, ok := locked[line.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", line.ProductID, domain.ErrProductNotFound)
		}
		if row.Stock < line.Quantity {
			return &domain.StockError{
				ProductID: line.ProductID,
				Name:      row.Name,
				Requested: line.Quantity,
				Available: row.Stock,
				Err:       domain.ErrConcurrentStockConflict,
			}
		}
	}

	batch := &pgx.Batch{}
	for _, line := range order.Lines {
		batch.Queue(`UPDATE products SET stock = stock - $1, version = version + 1, updated_at = now() WHERE id = $2`,
			line.Quantity, line.ProductID)
	}
	batch.Queue(`
		INSERT INTO orders (id, customer_name, customer_address, customer_phone, customer_note,
			subtotal, shipping, grand_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.Customer.Name, order.Customer.Address, order.Customer.Phone, order.Customer.Note,
		order.Subtotal, order.Shipping, order.GrandTotal, order.CreatedAt)
	for _, line := range order.Lines {
		batch.Queue(`
			INSERT INTO order_lines (order_id, product_id, name, unit_price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, line.ProductID, line.Name, line.UnitPrice, line.Quantity, line.Subtotal)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write order: %w", err)
	}

	return tx.Commit(ctx)
}

type lockedStock struct {
	Name  string
	Stock int
}

func lockStock(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]lockedStock, error) {
	rows, err := tx.Query(ctx, `SELECT id, name, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock stock: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]lockedStock, len(ids))
	for rows.Next() {
		var (
			id  int64
			row lockedStock
		)
		if err := rows.Scan(&id, &row.Name, &row.Stock); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out[id] = row
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) UpsertProduct(ctx context.Context, product domain.Product) error {
	var err error
	if product.ID == 0 {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO products (name, unit_price, stock, description, category)
			VALUES ($1, $2, $3, $4, $5)`,
			product.Name, product.UnitPrice, product.Stock, product.Description, product.Category)
	} else {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO products (id, name, unit_price, stock, description, category)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price,
				stock = EXCLUDED.stock, description = EXCLUDED.description, category = EXCLUDED.category,
				version = products.version + 1, updated_at = now()`,
			product.ID, product.Name, product.UnitPrice, product.Stock, product.Description, product.Category)
		if err == nil {
			// explicit ids do not advance the serial
			_, err = p.pool.Exec(ctx,
				`SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))`)
		}
	}
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) InsertProduct(ctx context.Context, product domain.Product) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO products (id, name, unit_price, stock, description, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		product.ID, product.Name, product.UnitPrice, product.Stock, product.Description, product.Category)
	if err != nil {
		return false, fmt.Errorf("insert product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := p.pool.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))`); err != nil {
		return true, fmt.Errorf("advance product id sequence: %w", err)
	}
	return true, nil
}
