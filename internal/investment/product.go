package investment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Product is an investment offering. Changing a product's rate never affects
// investments already purchased.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	AnnualRate     decimal.Decimal `json:"annual_rate"`
	DurationMonths int             `json:"duration_months"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	Insured        bool            `json:"insured"`
	InsuranceRate  decimal.Decimal `json:"insurance_rate"`
	Active         bool            `json:"active"`
}

// Accepts reports whether amount is within the product limits. A zero MaxAmount is
// unbounded.
func (p Product) Accepts(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) {
		return false
	}
	return !p.MaxAmount.IsPositive() || !amount.GreaterThan(p.MaxAmount)
}

// Catalog lists purchasable products.
type Catalog interface {
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context) ([]Product, error)
}

type memoryCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewMemoryCatalog returns a catalog holding products.
func NewMemoryCatalog(products ...Product) Catalog {
	c := &memoryCatalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *memoryCatalog) Get(_ context.Context, id string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok || !p.Active {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (c *memoryCatalog) List(_ context.Context) ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PostgresCatalog reads products from the investment_products table.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

// NewPostgresCatalog builds a Postgres-backed catalog.
func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const productColumns = `id, name, annual_rate, duration_months, min_amount, max_amount, insured, insurance_rate, active`

func (c *PostgresCatalog) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(c.db.QueryRow(ctx, `SELECT `+productColumns+` FROM investment_products WHERE id = $1 AND active`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (c *PostgresCatalog) List(ctx context.Context) ([]Product, error) {
	rows, err := c.db.Query(ctx, `SELECT `+productColumns+` FROM investment_products WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert stores or replaces a product. Used to seed the table from a pricing file.
func (c *PostgresCatalog) Upsert(ctx context.Context, p Product) error {
	_, err := c.db.Exec(ctx, `INSERT INTO investment_products (`+productColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, annual_rate = EXCLUDED.annual_rate,
            duration_months = EXCLUDED.duration_months, min_amount = EXCLUDED.min_amount,
            max_amount = EXCLUDED.max_amount, insured = EXCLUDED.insured,
            insurance_rate = EXCLUDED.insurance_rate, active = EXCLUDED.active`,
		p.ID, p.Name, p.AnnualRate, p.DurationMonths, p.MinAmount, p.MaxAmount, p.Insured, p.InsuranceRate, p.Active)
	return err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.AnnualRate, &p.DurationMonths, &p.MinAmount, &p.MaxAmount,
		&p.Insured, &p.InsuranceRate, &p.Active)
	return p, err
}

// DefaultProducts is the catalog used when no pricing file lists products.
func DefaultProducts() []Product {
	return []Product{
		{
			ID: "savings-6m", Name: "Épargne 6 mois",
			AnnualRate: decimal.NewFromInt(6), DurationMonths: 6,
			MinAmount: decimal.NewFromInt(5_000), MaxAmount: decimal.NewFromInt(5_000_000),
			Active: true,
		},
		{
			ID: "growth-12m", Name: "Croissance 12 mois",
			AnnualRate: decimal.NewFromInt(9), DurationMonths: 12,
			MinAmount: decimal.NewFromInt(10_000), MaxAmount: decimal.NewFromInt(10_000_000),
			Insured: true, InsuranceRate: decimal.NewFromInt(1),
			Active: true,
		},
	}
}

type productFile struct {
	Products []struct {
		ID             string `toml:"id"`
		Name           string `toml:"name"`
		AnnualRate     string `toml:"annual_rate"`
		DurationMonths int    `toml:"duration_months"`
		MinAmount      string `toml:"min_amount"`
		MaxAmount      string `toml:"max_amount"`
		Insured        bool   `toml:"insured"`
		InsuranceRate  string `toml:"insurance_rate"`
		Inactive       bool   `toml:"inactive"`
	} `toml:"products"`
}

// LoadProducts reads [[products]] tables from a TOML pricing file. It returns nil
// when the file lists none.
func LoadProducts(path string) ([]Product, error) {
	var file productFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode pricing file: %w", err)
	}
	out := make([]Product, 0, len(file.Products))
	for _, raw := range file.Products {
		if raw.ID == "" || raw.DurationMonths <= 0 {
			return nil, fmt.Errorf("product %q: id and duration_months are required", raw.ID)
		}
		p := Product{
			ID:             raw.ID,
			Name:           raw.Name,
			DurationMonths: raw.DurationMonths,
			Insured:        raw.Insured,
			Active:         !raw.Inactive,
		}
		var err error
		if p.AnnualRate, err = decimalOrZero(raw.AnnualRate); err != nil {
			return nil, fmt.Errorf("product %s annual_rate: %w", raw.ID, err)
		}
		if p.MinAmount, err = decimalOrZero(raw.MinAmount); err != nil {
			return nil, fmt.Errorf("product %s min_amount: %w", raw.ID, err)
		}
		if p.MaxAmount, err = decimalOrZero(raw.MaxAmount); err != nil {
			return nil, fmt.Errorf("product %s max_amount: %w", raw.ID, err)
		}
		if p.InsuranceRate, err = decimalOrZero(raw.InsuranceRate); err != nil {
			return nil, fmt.Errorf("product %s insurance_rate: %w", raw.ID, err)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
