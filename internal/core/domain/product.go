package domain

import "time"

type Product struct {
	ID          int64
	Name        string
	UnitPrice   int64 // smallest currency unit
	Stock       int
	Description string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Product) InStock() bool {
	return p.Stock > 0
}
