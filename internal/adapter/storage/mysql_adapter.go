package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		unit_price BIGINT NOT NULL,
		stock INT NOT NULL DEFAULT 0,
		description TEXT,
		category VARCHAR(100) NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT products_stock_non_negative CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) PRIMARY KEY,
		customer_name VARCHAR(255) NOT NULL,
		customer_address TEXT NOT NULL,
		customer_phone VARCHAR(64) NOT NULL,
		customer_note TEXT,
		subtotal BIGINT NOT NULL,
		shipping BIGINT NOT NULL,
		grand_total BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id CHAR(36) NOT NULL,
		product_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		unit_price BIGINT NOT NULL,
		quantity INT NOT NULL,
		subtotal BIGINT NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

const mysqlProductColumns = `id, name, unit_price, stock, COALESCE(description, ''), category, created_at, updated_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables when they are missing.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+mysqlProductColumns+` FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := m.db.QueryContext(ctx,
		`SELECT `+mysqlProductColumns+` FROM products WHERE id IN (`+placeholders+`)`, args...)
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
	return out, rows.Err()
}

func (m *MySQLAdapter) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+mysqlProductColumns+` FROM products WHERE stock > 0 ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CommitOrder debits every line with a conditional update and records the
// order, all inside one transaction. Lines arrive ordered by product id, so
// concurrent orders take row locks in the same order.
func (m *MySQLAdapter) CommitOrder(ctx context.Context, order domain.OrderSummary) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, line := range order.Lines {
		if err := decrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_address, customer_phone, customer_note,
			subtotal, shipping, grand_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Customer.Name, order.Customer.Address, order.Customer.Phone, order.Customer.Note,
		order.Subtotal, order.Shipping, order.GrandTotal, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, name, unit_price, quantity, subtotal)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, line.ProductID, line.Name, line.UnitPrice, line.Quantity, line.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit()
}

// decrementStock is the atomic "decrement if sufficient" primitive. When no
// row matches it tells a vanished product apart from a short one.
func decrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var (
		name  string
		stock int
	)
	err = tx.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = ?`, productID).Scan(&name, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", productID, domain.ErrProductNotFound)
	}
	if err != nil {
		return fmt.Errorf("query stock: %w", err)
	}

	return &domain.StockError{
		ProductID: productID,
		Name:      name,
		Requested: quantity,
		Available: stock,
		Err:       domain.ErrConcurrentStockConflict,
	}
}

func (m *MySQLAdapter) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price, stock, description, category)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), unit_price = VALUES(unit_price),
			stock = VALUES(stock), description = VALUES(description), category = VALUES(category),
			version = version + 1, updated_at = NOW()`,
		p.ID, p.Name, p.UnitPrice, p.Stock, p.Description, p.Category,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) InsertProduct(ctx context.Context, p domain.Product) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT IGNORE INTO products (id, name, unit_price, stock, description, category)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.UnitPrice, p.Stock, p.Description, p.Category,
	)
	if err != nil {
		return false, fmt.Errorf("insert product: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert product: %w", err)
	}
	return rows == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Stock, &p.Description, &p.Category, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
